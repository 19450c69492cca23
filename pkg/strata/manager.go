// Package strata is the facade over the layered memory subsystem. It owns
// the write path ordering (consent gate, encryption, commit, federation)
// and exposes search, fusion, consolidation, health and key rotation as one
// coherent surface.
package strata

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/consent"
	"github.com/strataworks/strata/pkg/embeddings"
	"github.com/strataworks/strata/pkg/federation"
	"github.com/strataworks/strata/pkg/layer"
	"github.com/strataworks/strata/pkg/memory"
	"github.com/strataworks/strata/pkg/memory/crypto"
	"github.com/strataworks/strata/pkg/search"
	"github.com/strataworks/strata/pkg/storage"
	"github.com/strataworks/strata/pkg/vector"
)

// Config holds the facade's dependencies and policy settings.
type Config struct {
	// Key is the 32-byte encryption key for the item codec.
	Key []byte

	// Storage persists encrypted items. Required.
	Storage storage.Driver

	// VectorProvider opens one index per scope key. Required.
	VectorProvider vector.Provider

	// Embedder resolves payload text to vectors. Required.
	Embedder embeddings.Embedder

	// MinimumConsensus is the inclusive floor for collective writes.
	// Defaults to consent.DefaultMinimumConsensus when zero.
	MinimumConsensus float64

	// RequireMentor additionally demands mentor approval on collective
	// writes.
	RequireMentor bool

	// DefaultPolicies maps scope kinds to the federation policy applied
	// when a store request does not name one. Missing kinds default to
	// disabled.
	DefaultPolicies map[memory.ScopeKind]memory.FederationPolicy

	// FederationTransport enables peer replication when set. Leave nil to
	// keep all writes local.
	FederationTransport federation.Transport

	// FederationWorkers and FederationQueueSize tune the async dispatch
	// pool. Zero values take the pool defaults.
	FederationWorkers   uint
	FederationQueueSize uint

	Logger *zap.Logger
}

// Manager is the memory subsystem facade.
type Manager struct {
	registry *layer.Registry
	coord    *search.Coordinator
	gate     *consent.Gate
	storage  storage.Driver
	embedder embeddings.Embedder
	fed      *federation.Manager
	pool     *federation.Pool
	logger   *zap.Logger

	policies map[memory.ScopeKind]memory.FederationPolicy

	// rotMu blocks the write path while a key rotation reseals storage.
	// Store takes the read side; RotateKey the write side.
	rotMu sync.RWMutex
	codec *crypto.Codec
}

// NewManager wires the facade from configuration.
func NewManager(c Config) (*Manager, error) {
	if c.Storage == nil || c.VectorProvider == nil || c.Embedder == nil {
		return nil, fmt.Errorf("manager requires storage, a vector provider and an embedder")
	}

	codec, err := crypto.NewCodec(c.Key)
	if err != nil {
		return nil, fmt.Errorf("building codec: %w", err)
	}

	registry, err := layer.NewRegistry(c.VectorProvider, c.Storage, codec, c.Logger)
	if err != nil {
		return nil, err
	}

	policies := make(map[memory.ScopeKind]memory.FederationPolicy, len(c.DefaultPolicies))
	for kind, policy := range c.DefaultPolicies {
		policies[kind] = policy
	}

	m := &Manager{
		registry: registry,
		coord:    search.NewCoordinator(registry, c.Embedder, c.Logger),
		gate: consent.NewGate(consent.Config{
			MinimumConsensus: c.MinimumConsensus,
			RequireMentor:    c.RequireMentor,
		}),
		storage:  c.Storage,
		embedder: c.Embedder,
		logger:   c.Logger,
		policies: policies,
		codec:    codec,
	}

	if c.FederationTransport != nil {
		fed, err := federation.NewManager(c.FederationTransport, c.Storage, c.Logger)
		if err != nil {
			return nil, err
		}

		pool, err := federation.NewPool(&federation.PoolConfig{
			Manager:    fed,
			NumWorkers: c.FederationWorkers,
			QueueSize:  c.FederationQueueSize,
			Logger:     c.Logger,
		})
		if err != nil {
			return nil, err
		}

		m.fed = fed
		m.pool = pool
	}

	return m, nil
}

// StoreRequest describes one write.
type StoreRequest struct {
	// Scope names the isolation namespace the item lands in.
	Scope memory.Scope

	// Payload carries the searchable content. Snapshotted at store time.
	Payload memory.SearchableContent

	// Embedding overrides embedding generation when the caller already has
	// a vector. Left nil, the payload text is embedded.
	Embedding []float32

	Priority memory.Priority

	// Policy overrides the per-kind default federation policy.
	Policy memory.FederationPolicy

	// Consent is required for relation scopes.
	Consent *consent.MutualConsent

	// Consensus and Mentor gate collective scopes.
	Consensus *consent.ConsensusLevel
	Mentor    *consent.MentorValidation
}

// Store runs the full write path: scope validation, consent gating,
// embedding, encryption, the layer commit, then async federation dispatch.
// A gate rejection is returned before anything touches storage.
func (m *Manager) Store(ctx context.Context, req StoreRequest) (*memory.StoreResult, error) {
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}
	if req.Payload == nil {
		return nil, fmt.Errorf("store requires a payload")
	}

	switch req.Scope.Kind {
	case memory.KindRelation:
		if err := m.gate.AuthorizeRelation(req.Consent); err != nil {
			return nil, err
		}
	case memory.KindCollective:
		if err := m.gate.AuthorizeCollective(req.Consensus, req.Mentor); err != nil {
			return nil, err
		}
	}

	payload := memory.Snapshot(req.Payload)

	embedding := req.Embedding
	if embedding == nil {
		var err error
		embedding, err = m.embedder.Embed(ctx, payload.SearchableText())
		if err != nil {
			return nil, fmt.Errorf("embedding payload: %w", err)
		}
	}

	policy := req.Policy
	if policy == "" {
		policy = m.defaultPolicy(req.Scope.Kind)
	}

	item := memory.NewItem(payload, embedding, req.Scope, req.Priority, policy)

	m.rotMu.RLock()
	defer m.rotMu.RUnlock()

	enc, err := m.codec.Encrypt(item)
	if err != nil {
		return nil, err
	}

	store, err := m.registry.Get(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	result, err := store.Put(ctx, enc, indexMeta(payload))
	if err != nil {
		return nil, err
	}

	result.Federated = m.dispatch(enc, req.Scope)

	return result, nil
}

// dispatch hands a committed item to the federation pool. Returns true when
// the item was queued for at least one target node.
func (m *Manager) dispatch(enc *memory.EncryptedItem, scope memory.Scope) bool {
	if m.fed == nil || enc.Policy == memory.FederationDisabled {
		return false
	}

	targets := m.fed.Targets(enc.Policy, scope.Agents())
	if len(targets) == 0 {
		return false
	}

	return m.pool.Enqueue(federation.Job{Item: enc, TargetIDs: targets})
}

func (m *Manager) defaultPolicy(kind memory.ScopeKind) memory.FederationPolicy {
	if policy, ok := m.policies[kind]; ok && policy != "" {
		return policy
	}
	return memory.FederationDisabled
}

// indexMeta builds the filterable metadata stored alongside the embedding.
func indexMeta(payload memory.Content) map[string]string {
	meta := make(map[string]string, len(payload.Meta)+1)
	for k, v := range payload.Meta {
		meta[k] = v
	}
	if payload.Type != "" {
		meta["content_type"] = payload.Type
	}
	return meta
}

// Search fans a query out across the given scopes and returns one merged
// ranking. See search.Coordinator for merge semantics.
func (m *Manager) Search(ctx context.Context, query string, scopes []memory.Scope, filters map[string]string, limit int) ([]search.RankedResult, error) {
	return m.coord.Search(ctx, query, scopes, filters, limit)
}

// ScopesFor builds the all-layers view for one agent: its entity scope,
// a relation scope per named peer, and each named collective tier.
func ScopesFor(agentID string, peers []string, tiers []string) []memory.Scope {
	scopes := []memory.Scope{memory.EntityScope(agentID)}
	for _, peer := range peers {
		scopes = append(scopes, memory.RelationScope(agentID, peer))
	}
	for _, tier := range tiers {
		scopes = append(scopes, memory.CollectiveScope(tier))
	}
	return scopes
}

// Get loads one item from a scope.
func (m *Manager) Get(ctx context.Context, scope memory.Scope, id string) (*memory.Item, error) {
	store, err := m.registry.Get(ctx, scope)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, id)
}

// List loads every live item in a scope.
func (m *Manager) List(ctx context.Context, scope memory.Scope) ([]*memory.Item, error) {
	store, err := m.registry.Get(ctx, scope)
	if err != nil {
		return nil, err
	}
	return store.List(ctx)
}

// AnalyzePatterns aggregates an agent's entity scope by content type.
func (m *Manager) AnalyzePatterns(ctx context.Context, agentID string) ([]memory.BehaviorPattern, error) {
	store, err := m.registry.Get(ctx, memory.EntityScope(agentID))
	if err != nil {
		return nil, err
	}
	return store.AnalyzePatterns(ctx)
}

// Fuse loads the named items from a scope and combines them under the given
// strategy. Pure read; nothing is persisted. The caller supplies the
// consensus floor the sources must clear; zero falls back to the gate's
// configured floor.
func (m *Manager) Fuse(ctx context.Context, scope memory.Scope, ids []string, strategy memory.FuseStrategy, requiredConsensus float64) (*memory.Content, error) {
	items, err := m.load(ctx, scope, ids)
	if err != nil {
		return nil, err
	}
	return memory.Fuse(items, strategy, m.consensusFloor(requiredConsensus))
}

// consensusFloor resolves a caller-supplied consensus floor, defaulting to
// the gate's configured floor when unset.
func (m *Manager) consensusFloor(required float64) float64 {
	if required == 0 {
		return m.gate.MinimumConsensus()
	}
	return required
}

func (m *Manager) load(ctx context.Context, scope memory.Scope, ids []string) ([]*memory.Item, error) {
	store, err := m.registry.Get(ctx, scope)
	if err != nil {
		return nil, err
	}

	items := make([]*memory.Item, 0, len(ids))
	for _, id := range ids {
		item, err := store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading item %s: %w", id, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// RegisterNode adds a federation peer. No-op without a transport.
func (m *Manager) RegisterNode(node *federation.Node) {
	if m.fed != nil {
		m.fed.RegisterNode(node)
	}
}

// Synchronize reconciles peers under the given sync policy.
func (m *Manager) Synchronize(ctx context.Context, nodeIDs []string, policy federation.SyncPolicy, ids []string) (*federation.Result, error) {
	if m.fed == nil {
		return nil, fmt.Errorf("federation is not configured")
	}
	return m.fed.Synchronize(ctx, nodeIDs, policy, ids)
}

// CheckFederationHealth pings every registered peer.
func (m *Manager) CheckFederationHealth(ctx context.Context) {
	if m.fed != nil {
		m.fed.CheckHealth(ctx)
	}
}

// Close drains the federation pool, then releases every component.
func (m *Manager) Close() error {
	var firstErr error

	if m.pool != nil {
		m.pool.Close()
	}
	if m.fed != nil {
		if err := m.fed.Close(); err != nil {
			firstErr = err
		}
	}
	if err := m.registry.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.storage.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
