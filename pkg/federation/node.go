package federation

import (
	"sync"
	"time"
)

// Node is a peer that receives federated copies of memory items.
type Node struct {
	// ID uniquely names the peer.
	ID string

	// Addr is the transport-specific address of the peer.
	Addr string

	// Agents lists the agent identifiers this node serves. Used by the
	// agent_specific and bilateral policies.
	Agents []string

	mu       sync.RWMutex
	healthy  bool
	lastSync time.Time
}

// NewNode creates a node that starts healthy.
func NewNode(id, addr string, agents ...string) *Node {
	return &Node{
		ID:      id,
		Addr:    addr,
		Agents:  agents,
		healthy: true,
	}
}

// Healthy reports the last observed health of the node.
func (n *Node) Healthy() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.healthy
}

func (n *Node) setHealthy(healthy bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.healthy = healthy
}

// LastSync returns the time of the last successful synchronize call.
func (n *Node) LastSync() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastSync
}

func (n *Node) setLastSync(t time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastSync = t
}

func (n *Node) serves(agent string) bool {
	for _, a := range n.Agents {
		if a == agent {
			return true
		}
	}
	return false
}
