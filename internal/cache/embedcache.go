package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/embedding"
)

const keyPrefix = "secgraph:embed:"

// EmbeddingCache decorates an embedding.Provider with a Redis cache keyed by
// a hash of the input text. Enrichment re-runs and repeated chat turns embed
// the same texts, so cache hits save real provider calls.
type EmbeddingCache struct {
	inner  embedding.Provider
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New connects to Redis and wraps the given provider. A zero TTL stores
// entries without expiry.
func New(redisURL string, inner embedding.Provider, ttl time.Duration, logger *zap.Logger) (*EmbeddingCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &EmbeddingCache{inner: inner, rdb: rdb, ttl: ttl, logger: logger}, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Embed returns cached vectors where available and delegates the misses to
// the wrapped provider in a single batch. Cache failures degrade to a plain
// provider call; they are logged, never surfaced.
func (c *EmbeddingCache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		data, err := c.rdb.Get(ctx, cacheKey(text)).Bytes()
		if err != nil {
			if err != redis.Nil {
				c.logger.Warn("embedding cache read failed", zap.Error(err))
			}
			missTexts = append(missTexts, text)
			missIdx = append(missIdx, i)
			continue
		}
		var vec []float32
		if err := json.Unmarshal(data, &vec); err != nil {
			c.logger.Warn("embedding cache entry corrupt, re-embedding", zap.Error(err))
			missTexts = append(missTexts, text)
			missIdx = append(missIdx, i)
			continue
		}
		vectors[i] = vec
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedding cache: provider returned %d vectors for %d texts", len(fresh), len(missTexts))
	}

	for j, vec := range fresh {
		vectors[missIdx[j]] = vec
		data, err := json.Marshal(vec)
		if err != nil {
			continue
		}
		if err := c.rdb.Set(ctx, cacheKey(missTexts[j]), data, c.ttl).Err(); err != nil {
			c.logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return vectors, nil
}

// Dimension reports the wrapped provider's dimension.
func (c *EmbeddingCache) Dimension() int {
	return c.inner.Dimension()
}

// Close releases the Redis connection.
func (c *EmbeddingCache) Close() error {
	return c.rdb.Close()
}
