package semantic

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/embedding"
	"github.com/nidhogg/secgraph/internal/finding"
)

// FindingSource yields the findings that carry a precomputed embedding.
type FindingSource interface {
	FetchFindingsWithEmbeddings(ctx context.Context) ([]*finding.Finding, error)
}

// ScoredFinding is a finding ranked against a query.
type ScoredFinding struct {
	*finding.Finding
	Similarity float64 `json:"similarity"`
}

// Searcher ranks findings by cosine similarity to an embedded query.
// It is read-only: no merge or write behavior.
type Searcher struct {
	source   FindingSource
	embedder embedding.Provider
	logger   *zap.Logger
}

// NewSearcher creates a semantic searcher.
func NewSearcher(source FindingSource, embedder embedding.Provider, logger *zap.Logger) *Searcher {
	return &Searcher{source: source, embedder: embedder, logger: logger}
}

// Search embeds the query and returns all embedded findings with their
// similarity score, sorted descending. Findings without an embedding never
// appear.
func (s *Searcher) Search(ctx context.Context, query string) ([]ScoredFinding, error) {
	queryVec, err := embedding.EmbedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	findings, err := s.source.FetchFindingsWithEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredFinding, 0, len(findings))
	for _, f := range findings {
		scored = append(scored, ScoredFinding{
			Finding:    f,
			Similarity: embedding.Cosine(f.Embedding, queryVec),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	s.logger.Debug("semantic search ranked findings",
		zap.String("query", query), zap.Int("count", len(scored)))
	return scored, nil
}
