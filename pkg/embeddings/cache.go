package embeddings

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgraph-io/ristretto"
)

// DefaultCacheSize is the default embedding cache budget in bytes.
const DefaultCacheSize = 64 << 20

// CachedEmbedder memoizes Embed results by text.
type CachedEmbedder struct {
	next   Embedder
	cache  *ristretto.Cache
	logger *slog.Logger
}

// NewCachedEmbedder wraps next with a cache holding up to maxBytes of vectors.
func NewCachedEmbedder(next Embedder, maxBytes int64, logger *slog.Logger) (*CachedEmbedder, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheSize
	}

	// ristretto recommends ~10 counters per item; assume 768-wide vectors.
	items := max(maxBytes/(768*4), 1)
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: items * 10,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}

	return &CachedEmbedder{
		next:   next,
		cache:  cache,
		logger: logger,
	}, nil
}

// Embed returns the cached vector for text or computes and stores it.
// Callers receive a copy and may modify it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			c.logger.Debug("embedding cache hit", "chars", len(text))
			return slices.Clone(vec), nil
		}
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, slices.Clone(vec), int64(len(vec)*4))
	return vec, nil
}

// Dimensions delegates to the wrapped embedder.
func (c *CachedEmbedder) Dimensions(ctx context.Context) (int, error) {
	return c.next.Dimensions(ctx)
}

// Wait blocks until pending cache writes are applied.
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

// Close closes the cache and the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Close()
	return c.next.Close()
}

var _ Embedder = (*CachedEmbedder)(nil)
