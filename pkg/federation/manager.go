// Package federation replicates committed memory items to peer nodes under
// per-write federation policies and reconciles peers via full, incremental
// and selective synchronization.
package federation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/memory"
)

// SyncPolicy selects what a synchronize call resends.
type SyncPolicy string

const (
	// SyncFull resends everything.
	SyncFull SyncPolicy = "full"

	// SyncIncremental resends items created since the node's last
	// successful sync.
	SyncIncremental SyncPolicy = "incremental"

	// SyncSelective resends a caller-supplied id set.
	SyncSelective SyncPolicy = "selective"
)

// NodeError records a per-node delivery failure.
type NodeError struct {
	NodeID string `json:"node_id"`
	Err    error  `json:"-"`
}

func (e NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e NodeError) Unwrap() error { return e.Err }

// Result reports the outcome of a broadcast or synchronize call. Per-node
// failures are collected here, not raised individually.
type Result struct {
	SyncedCount int           `json:"synced_count"`
	Errors      []NodeError   `json:"errors,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Source provides the committed items synchronize resends. The storage
// driver satisfies it.
type Source interface {
	ListSince(ctx context.Context, since time.Time) ([]*memory.EncryptedItem, error)
	GetByIDs(ctx context.Context, ids []string) ([]*memory.EncryptedItem, error)
}

// Manager tracks peer nodes and replicates items to them.
type Manager struct {
	transport Transport
	source    Source
	logger    *zap.Logger

	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewManager creates a federation manager. Transport and source are
// required.
func NewManager(transport Transport, source Source, logger *zap.Logger) (*Manager, error) {
	if transport == nil {
		return nil, fmt.Errorf("federation manager requires a transport")
	}
	if source == nil {
		return nil, fmt.Errorf("federation manager requires an item source")
	}

	return &Manager{
		transport: transport,
		source:    source,
		logger:    logger,
		nodes:     make(map[string]*Node),
	}, nil
}

// RegisterNode adds or replaces a peer node.
func (m *Manager) RegisterNode(node *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.ID] = node
}

// Nodes returns a snapshot of the registered nodes.
func (m *Manager) Nodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	return out
}

// Targets resolves a federation policy to node ids. The agents argument
// carries the scope participants (one for entity, two for relation).
func (m *Manager) Targets(policy memory.FederationPolicy, agents []string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for id, node := range m.nodes {
		switch policy {
		case memory.FederationBroadcast:
			out = append(out, id)
		case memory.FederationAgentSpecific, memory.FederationBilateral:
			for _, agent := range agents {
				if node.serves(agent) {
					out = append(out, id)
					break
				}
			}
		}
	}
	return out
}

// Broadcast fans an item out to the target nodes, best effort. Unhealthy
// nodes are skipped. Per-node failures are collected into the result; the
// call itself fails only when every target failed. Once a per-node send is
// dispatched it is not retracted on caller cancellation.
func (m *Manager) Broadcast(ctx context.Context, item *memory.EncryptedItem, targetIDs []string) (*Result, error) {
	start := time.Now()

	targets := m.lookup(targetIDs)
	result := &Result{}

	var attempted []*Node
	for _, node := range targets {
		if !node.Healthy() {
			m.logger.Debug("skipping unhealthy node during broadcast",
				zap.String("node_id", node.ID),
			)
			continue
		}
		attempted = append(attempted, node)
	}

	if len(attempted) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		synced  int
		nodeErr []NodeError
	)

	for _, node := range attempted {
		wg.Add(1)
		go func(node *Node) {
			defer wg.Done()

			if err := m.transport.Send(ctx, node, item); err != nil {
				m.logger.Warn("broadcast to node failed",
					zap.String("node_id", node.ID),
					zap.Error(err),
				)
				mu.Lock()
				nodeErr = append(nodeErr, NodeError{NodeID: node.ID, Err: err})
				mu.Unlock()
				return
			}

			mu.Lock()
			synced++
			mu.Unlock()
		}(node)
	}

	wg.Wait()

	result.SyncedCount = synced
	result.Errors = nodeErr
	result.Duration = time.Since(start)

	if synced == 0 && len(nodeErr) > 0 {
		return result, fmt.Errorf("broadcast failed on all %d target nodes", len(nodeErr))
	}

	return result, nil
}

// Synchronize reconciles the named nodes under the given policy. Unlike
// broadcast, an explicit synchronize always attempts every named node,
// healthy or not. The ids argument is only read for SyncSelective.
func (m *Manager) Synchronize(ctx context.Context, nodeIDs []string, policy SyncPolicy, ids []string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	for _, node := range m.lookup(nodeIDs) {
		// The watermark is captured before the snapshot read so items
		// committed mid-sync land in the next incremental window. ListSince
		// is at-or-after, so the boundary item is resent, not lost.
		syncStart := time.Now().UTC()

		items, err := m.itemsFor(ctx, node, policy, ids)
		if err != nil {
			return result, fmt.Errorf("loading items for node %s: %w", node.ID, err)
		}

		failed := false
		for _, item := range items {
			if err := m.transport.Send(ctx, node, item); err != nil {
				result.Errors = append(result.Errors, NodeError{NodeID: node.ID, Err: err})
				failed = true
				break
			}
			result.SyncedCount++
		}

		if !failed {
			node.setLastSync(syncStart)
			node.setHealthy(true)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (m *Manager) itemsFor(ctx context.Context, node *Node, policy SyncPolicy, ids []string) ([]*memory.EncryptedItem, error) {
	switch policy {
	case SyncFull:
		return m.source.ListSince(ctx, time.Time{})
	case SyncIncremental:
		return m.source.ListSince(ctx, node.LastSync())
	case SyncSelective:
		return m.source.GetByIDs(ctx, ids)
	default:
		return nil, fmt.Errorf("unknown sync policy %q", policy)
	}
}

// CheckHealth pings every node and updates its health flag.
func (m *Manager) CheckHealth(ctx context.Context) {
	for _, node := range m.Nodes() {
		err := m.transport.Ping(ctx, node)
		node.setHealthy(err == nil)
		if err != nil {
			m.logger.Warn("node failed health check",
				zap.String("node_id", node.ID),
				zap.Error(err),
			)
		}
	}
}

// Health returns the fraction of registered nodes currently healthy.
// A manager with no nodes is healthy.
func (m *Manager) Health() float64 {
	nodes := m.Nodes()
	if len(nodes) == 0 {
		return 1.0
	}

	healthy := 0
	for _, n := range nodes {
		if n.Healthy() {
			healthy++
		}
	}
	return float64(healthy) / float64(len(nodes))
}

// Close releases the transport.
func (m *Manager) Close() error {
	return m.transport.Close()
}

func (m *Manager) lookup(ids []string) []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if node, ok := m.nodes[id]; ok {
			out = append(out, node)
		}
	}
	return out
}
