// Package embeddings defines the embedding provider consumed by the memory
// core and the migration engine.
package embeddings

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the width of vectors returned by Embed.
	Dimensions(ctx context.Context) (int, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// ProbeText is embedded to discover a model's output width.
const ProbeText = "dimension probe"

// DimensionProbe discovers and caches an embedder's output width. A fixed
// width set with Fixed is returned without probing. Failed probes are not
// cached.
type DimensionProbe struct {
	mu  sync.Mutex
	dim int
}

// Fixed pins the width. Non-positive values are ignored.
func (p *DimensionProbe) Fixed(dim int) {
	if dim <= 0 {
		return
	}
	p.mu.Lock()
	p.dim = dim
	p.mu.Unlock()
}

// Get returns the cached width, calling embed once on ProbeText if unknown.
func (p *DimensionProbe) Get(ctx context.Context, embed func(context.Context, string) ([]float32, error)) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dim > 0 {
		return p.dim, nil
	}

	v, err := embed(ctx, ProbeText)
	if err != nil {
		return 0, fmt.Errorf("probing embedding dimension: %w", err)
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("%w: probe returned an empty vector", vector.ErrEmbedding)
	}
	p.dim = len(v)
	return p.dim, nil
}
