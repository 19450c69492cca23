package layer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/memory"
	"github.com/strataworks/strata/pkg/memory/crypto"
	"github.com/strataworks/strata/pkg/storage"
	"github.com/strataworks/strata/pkg/vector"
)

// Registry maps scope keys to stores, creating each store on first access
// and caching the handle for the process lifetime.
type Registry struct {
	provider vector.Provider
	storage  storage.Driver
	logger   *zap.Logger

	mu     sync.RWMutex
	codec  *crypto.Codec
	stores map[string]*Store
}

// NewRegistry creates an empty registry. All dependencies are required.
func NewRegistry(provider vector.Provider, store storage.Driver, codec *crypto.Codec, logger *zap.Logger) (*Registry, error) {
	if provider == nil || store == nil || codec == nil {
		return nil, fmt.Errorf("registry requires a vector provider, storage driver and codec")
	}

	return &Registry{
		provider: provider,
		storage:  store,
		codec:    codec,
		logger:   logger,
		stores:   make(map[string]*Store),
	}, nil
}

// Get returns the store for the scope, opening its backing index on first
// use per scope key.
func (r *Registry) Get(ctx context.Context, scope memory.Scope) (*Store, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	key := scope.Key()

	r.mu.RLock()
	s, ok := r.stores[key]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if s, ok := r.stores[key]; ok {
		return s, nil
	}

	index, err := r.provider.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("opening index for scope %s: %w", key, err)
	}

	s = &Store{
		scope:    scope,
		scopeKey: key,
		index:    index,
		storage:  r.storage,
		codec:    r.codec,
		logger:   r.logger,
	}
	r.stores[key] = s

	r.logger.Info("layer store opened",
		zap.String("scope_key", key),
		zap.String("kind", string(scope.Kind)),
	)

	return s, nil
}

// SetCodec swaps the codec used by every store. Only the key-rotation path
// may call this; the facade blocks writes while it runs.
func (r *Registry) SetCodec(codec *crypto.Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.codec = codec
	for _, s := range r.stores {
		s.codec = codec
	}
}

// Health returns the fraction of open stores whose index handle is
// healthy. An empty registry is healthy.
func (r *Registry) Health(ctx context.Context) float64 {
	r.mu.RLock()
	stores := make([]*Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.RUnlock()

	if len(stores) == 0 {
		return 1.0
	}

	healthy := 0
	for _, s := range stores {
		if s.Healthy(ctx) {
			healthy++
		}
	}

	return float64(healthy) / float64(len(stores))
}

// Close closes every opened index handle and the provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, s := range r.stores {
		if err := s.index.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing index for scope %s: %w", key, err)
		}
	}
	r.stores = make(map[string]*Store)

	if err := r.provider.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
