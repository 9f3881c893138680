package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/embedding"
	"github.com/nidhogg/secgraph/internal/graph"
)

// Populator backfills embeddings onto Finding nodes that lack one.
type Populator struct {
	store    *graph.Store
	embedder embedding.Provider
	logger   *zap.Logger
}

// NewPopulator creates an embedding populator.
func NewPopulator(store *graph.Store, embedder embedding.Provider, logger *zap.Logger) *Populator {
	return &Populator{store: store, embedder: embedder, logger: logger}
}

// PopulateReport summarizes one population run.
type PopulateReport struct {
	Embedded int      `json:"embedded"`
	Failed   []string `json:"failed,omitempty"`
}

// Run embeds every finding without an embedding and stores the vector on
// its node. Per-finding failures are logged and skipped.
func (p *Populator) Run(ctx context.Context) (*PopulateReport, error) {
	findings, err := p.store.FindingIDsWithoutEmbedding(ctx)
	if err != nil {
		return nil, err
	}

	report := &PopulateReport{}
	for _, f := range findings {
		vec, err := embedding.EmbedOne(ctx, p.embedder, f.EmbeddingText())
		if err != nil {
			p.logger.Warn("embedding failed",
				zap.String("finding_id", f.FindingID), zap.Error(err))
			report.Failed = append(report.Failed, f.FindingID)
			continue
		}
		if err := p.store.SetEmbedding(ctx, f.FindingID, vec); err != nil {
			p.logger.Warn("embedding write failed",
				zap.String("finding_id", f.FindingID), zap.Error(err))
			report.Failed = append(report.Failed, f.FindingID)
			continue
		}
		report.Embedded++
	}

	p.logger.Info("embedding population finished",
		zap.Int("embedded", report.Embedded), zap.Int("failed", len(report.Failed)))
	return report, nil
}
