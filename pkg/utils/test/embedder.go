package testutils

import (
	"context"
	"fmt"
	"sync"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	Embeddings map[string][]float32

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	mu    sync.Mutex
	calls int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	// Return a default embedding for any text
	return []float32{0.1, 0.2, 0.3}, nil
}

// Calls reports how many times Embed was invoked. Used by cache tests.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockEmbedder) Close() error {
	return nil
}
