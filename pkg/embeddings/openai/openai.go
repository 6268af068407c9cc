// Package openai implements embeddings.Embedder with the OpenAI embeddings
// API, or any server that speaks it.
package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/papercomputeco/mnemosyne/pkg/embeddings"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

// DefaultEmbeddingModel is used when no model is configured.
const DefaultEmbeddingModel = string(goopenai.SmallEmbedding3)

// knownDimensions are the default output widths of hosted models.
var knownDimensions = map[string]int{
	string(goopenai.AdaEmbeddingV2):  1536,
	string(goopenai.SmallEmbedding3): 1536,
	string(goopenai.LargeEmbedding3): 3072,
}

// Embedder calls the embeddings endpoint through go-openai.
type Embedder struct {
	client     *goopenai.Client
	model      string
	dimensions int
	probe      embeddings.DimensionProbe
}

// EmbedderConfig holds configuration for the OpenAI embedder.
type EmbedderConfig struct {
	// BaseURL overrides the API base, e.g. "https://api.openai.com/v1".
	BaseURL string
	APIKey  string

	// Model defaults to DefaultEmbeddingModel.
	Model string

	// Dimensions requests a shortened output from models that support it.
	// Zero uses the model default.
	Dimensions int
}

// NewEmbedder creates an OpenAI embedder.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai api key is required")
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	e := &Embedder{
		client:     goopenai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: cfg.Dimensions,
	}
	if cfg.Dimensions > 0 {
		e.probe.Fixed(cfg.Dimensions)
	} else {
		e.probe.Fixed(knownDimensions[model])
	}
	return e, nil
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input:      []string{text},
		Model:      goopenai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai embeddings: %w", vector.ErrEmbedding, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", vector.ErrEmbedding)
	}
	return resp.Data[0].Embedding, nil
}

// Dimensions returns the requested or known width, probing unknown models.
func (e *Embedder) Dimensions(ctx context.Context) (int, error) {
	return e.probe.Get(ctx, e.Embed)
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
