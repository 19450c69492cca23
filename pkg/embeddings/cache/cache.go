// Package cache memoizes embedding vectors in front of a generator.
//
// Entries are keyed by (model, text) and expire after a configurable TTL.
// The cache is bounded and internally synchronized (ristretto), and it is
// strictly best-effort: a rejected or missing cache entry only means the
// generator is called again. Cache trouble never fails an Embed.
package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/embeddings"
)

const (
	// DefaultTTL is how long a memoized embedding stays valid.
	DefaultTTL = time.Hour

	// DefaultMaxEntries bounds the cache size.
	DefaultMaxEntries = 4096
)

// Config holds configuration for the caching embedder.
type Config struct {
	// Model namespaces cache keys so two embedders with different models
	// never share entries. Required.
	Model string

	// TTL is the entry lifetime. Defaults to DefaultTTL if zero.
	TTL time.Duration

	// MaxEntries bounds the cache. Defaults to DefaultMaxEntries if zero.
	MaxEntries int64
}

// Embedder wraps another Embedder with a bounded, expiring cache.
type Embedder struct {
	inner  embeddings.Embedder
	cache  *ristretto.Cache
	model  string
	ttl    time.Duration
	logger *zap.Logger
}

// NewEmbedder creates a caching embedder in front of inner.
func NewEmbedder(inner embeddings.Embedder, cfg Config, logger *zap.Logger) (*Embedder, error) {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	maxEntries := cfg.MaxEntries
	if maxEntries == 0 {
		maxEntries = DefaultMaxEntries
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		// Counters track access frequency; 10x capacity is the
		// recommended sizing.
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &Embedder{
		inner:  inner,
		cache:  cache,
		model:  cfg.Model,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Embed returns the memoized vector for (model, text) or generates and
// memoizes one. A copy is returned so callers cannot mutate cached state.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.model + "\x00" + text

	if cached, ok := e.cache.Get(key); ok {
		if emb, ok := cached.([]float32); ok {
			e.logger.Debug("embedding cache hit",
				zap.String("model", e.model),
				zap.Int("dim", len(emb)),
			)
			out := make([]float32, len(emb))
			copy(out, emb)
			return out, nil
		}
	}

	emb, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	stored := make([]float32, len(emb))
	copy(stored, emb)

	// Set is best-effort; ristretto may reject the entry under pressure.
	if !e.cache.SetWithTTL(key, stored, 1, e.ttl) {
		e.logger.Debug("embedding cache set rejected",
			zap.String("model", e.model),
		)
	}

	return emb, nil
}

// Healthy probes the cache with a sentinel set/get round trip. A cache
// that rejects or loses the sentinel is degraded but still usable.
func (e *Embedder) Healthy() bool {
	const key = "\x00health-probe"

	if !e.cache.SetWithTTL(key, true, 1, time.Minute) {
		return false
	}
	e.cache.Wait()

	_, ok := e.cache.Get(key)
	return ok
}

// Wait blocks until pending cache writes are applied. Test hook.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache and the wrapped embedder.
func (e *Embedder) Close() error {
	e.cache.Close()
	return e.inner.Close()
}

var _ embeddings.Embedder = (*Embedder)(nil)
