package embedding

import (
	"context"
	"fmt"
	"sync"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// EmbedOne embeds a single text and returns its vector. Query embedding and
// memory-item embedding both go through here.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding: empty vector for text")
	}
	return vecs[0], nil
}

// dimTracker reports the configured dimension until a real vector has been
// seen, then the observed one. Endpoints do not always honor the configured
// size, and semantic search needs the true value.
type dimTracker struct {
	mu       sync.Mutex
	fallback int
	observed int
}

func (d *dimTracker) observe(vectors [][]float32) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return
	}
	d.mu.Lock()
	if d.observed == 0 {
		d.observed = len(vectors[0])
	}
	d.mu.Unlock()
}

func (d *dimTracker) value() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.observed > 0 {
		return d.observed
	}
	return d.fallback
}
