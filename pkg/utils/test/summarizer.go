package testutils

import (
	"context"
	"errors"
	"sync"
)

// ErrMockSummarizer is returned by MockSummarizer when Fail is set.
var ErrMockSummarizer = errors.New("mock summarizer failure")

// MockSummarizer returns a fixed summary and records its inputs.
type MockSummarizer struct {
	mu sync.Mutex

	// Summary is returned by Summarize.
	Summary string

	// Fail makes Summarize return ErrMockSummarizer.
	Fail bool

	inputs []string
}

func NewMockSummarizer(summary string) *MockSummarizer {
	return &MockSummarizer{Summary: summary}
}

func (m *MockSummarizer) Summarize(_ context.Context, history string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inputs = append(m.inputs, history)
	if m.Fail {
		return "", ErrMockSummarizer
	}
	return m.Summary, nil
}

// Inputs returns every history passed to Summarize.
func (m *MockSummarizer) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inputs...)
}

func (m *MockSummarizer) Close() error {
	return nil
}
