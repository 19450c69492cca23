package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/strataworks/strata/pkg/federation"
	"github.com/strataworks/strata/pkg/memory"
)

// MockTransport is a federation transport that records sends and can fail
// per node.
type MockTransport struct {
	mu sync.Mutex

	// FailNodes lists node ids whose sends and pings fail.
	FailNodes map[string]bool

	// Sent maps node id -> delivered items in order.
	Sent map[string][]*memory.EncryptedItem
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		FailNodes: make(map[string]bool),
		Sent:      make(map[string][]*memory.EncryptedItem),
	}
}

func (t *MockTransport) Send(_ context.Context, node *federation.Node, item *memory.EncryptedItem) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FailNodes[node.ID] {
		return fmt.Errorf("mock transport failure for node %s", node.ID)
	}

	t.Sent[node.ID] = append(t.Sent[node.ID], item)
	return nil
}

func (t *MockTransport) Ping(_ context.Context, node *federation.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FailNodes[node.ID] {
		return fmt.Errorf("mock ping failure for node %s", node.ID)
	}
	return nil
}

// SentTo returns a copy of the items delivered to one node.
func (t *MockTransport) SentTo(nodeID string) []*memory.EncryptedItem {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*memory.EncryptedItem, len(t.Sent[nodeID]))
	copy(out, t.Sent[nodeID])
	return out
}

func (t *MockTransport) Close() error {
	return nil
}
