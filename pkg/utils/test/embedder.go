package testutils

import (
	"context"
	"fmt"
	"sync"
)

// DefaultMockDimension is the width of MockEmbedder vectors unless Dim is set.
const DefaultMockDimension = 3

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	mu sync.Mutex

	Embeddings map[string][]float32

	// Dim is the width of default embeddings and the reported dimension.
	Dim int

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	// Empty makes Embed return a zero-length vector for matching text.
	Empty string

	// DimErr is returned by Dimensions when set.
	DimErr error

	calls []string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Dim:        DefaultMockDimension,
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, text)

	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}
	if m.Empty != "" && text == m.Empty {
		return []float32{}, nil
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	// Default embedding: 0.1, 0.2, ... up to Dim
	emb := make([]float32, m.Dim)
	for i := range emb {
		emb[i] = float32(i+1) / 10
	}
	return emb, nil
}

func (m *MockEmbedder) Dimensions(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DimErr != nil {
		return 0, m.DimErr
	}
	return m.Dim, nil
}

// Calls returns the texts passed to Embed, in call order.
func (m *MockEmbedder) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockEmbedder) Close() error {
	return nil
}
