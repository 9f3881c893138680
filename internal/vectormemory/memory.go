package vectormemory

import (
	"context"
	"sort"
	"sync"

	"github.com/nidhogg/secgraph/internal/embedding"
)

// Item is one condensed past interaction: its summary sentence and the
// embedding of that sentence.
type Item struct {
	Embedding []float32 `json:"embedding"`
	Text      string    `json:"text"`
}

// Store holds embedded summaries of past turns. Items are append-only
// until compaction replaces the whole store with a single summary.
type Store interface {
	// Add appends one item.
	Add(ctx context.Context, item Item) error
	// RetrieveSimilar returns the texts of the min(k, size) items most
	// similar to the query embedding, in non-increasing similarity order.
	RetrieveSimilar(ctx context.Context, query []float32, k int) ([]string, error)
	// Texts returns every stored text in insertion order.
	Texts(ctx context.Context) ([]string, error)
	// Len reports the number of stored items.
	Len(ctx context.Context) (int, error)
	// ReplaceAll discards every item and stores the single given item.
	// This is the compaction primitive.
	ReplaceAll(ctx context.Context, item Item) error
}

// InMemoryStore is the reference Store: process-local, mutex-guarded, no
// persistence. Its lifetime is tied to the orchestrator process.
type InMemoryStore struct {
	mu    sync.RWMutex
	items []Item
}

// NewInMemoryStore creates an empty in-process store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Add appends one item.
func (s *InMemoryStore) Add(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	return nil
}

// RetrieveSimilar scores every item against the query embedding and returns
// the top-k texts, most similar first.
func (s *InMemoryStore) RetrieveSimilar(_ context.Context, query []float32, k int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		text string
		sim  float64
	}
	ranked := make([]scored, 0, len(s.items))
	for _, item := range s.items {
		ranked = append(ranked, scored{
			text: item.Text,
			sim:  embedding.Cosine(item.Embedding, query),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].sim > ranked[j].sim
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	if k < 0 {
		k = 0
	}
	texts := make([]string, 0, k)
	for _, r := range ranked[:k] {
		texts = append(texts, r.text)
	}
	return texts, nil
}

// Texts returns every stored text in insertion order.
func (s *InMemoryStore) Texts(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	texts := make([]string, len(s.items))
	for i, item := range s.items {
		texts[i] = item.Text
	}
	return texts, nil
}

// Len reports the number of stored items.
func (s *InMemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// ReplaceAll swaps the whole list for the single given item.
func (s *InMemoryStore) ReplaceAll(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = []Item{item}
	return nil
}
