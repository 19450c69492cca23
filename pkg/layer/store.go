// Package layer implements per-scope stores over encrypted persistence and
// a vector index, plus the registry that lazily creates one store per scope
// value.
package layer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/memory"
	"github.com/strataworks/strata/pkg/memory/crypto"
	"github.com/strataworks/strata/pkg/storage"
	"github.com/strataworks/strata/pkg/vector"
)

// Scored pairs a decrypted item with its similarity score.
type Scored struct {
	Item  *memory.Item
	Score float32
}

// Store owns persistence and indexing for one scope value. The vector
// driver handle is exclusive to this store; the storage driver is shared
// but every call carries this store's scope key.
type Store struct {
	scope    memory.Scope
	scopeKey string
	index    vector.Driver
	storage  storage.Driver
	codec    *crypto.Codec
	logger   *zap.Logger
}

// Put persists the ciphertext and indexes the plaintext embedding with the
// given filterable metadata. Persistence plus indexing is one logical
// commit: when indexing fails the ciphertext row is removed and the write
// is reported failed.
func (s *Store) Put(ctx context.Context, enc *memory.EncryptedItem, indexMeta map[string]string) (*memory.StoreResult, error) {
	if enc.ScopeKey != s.scopeKey {
		return nil, fmt.Errorf("item %s belongs to scope %s, not %s", enc.ID, enc.ScopeKey, s.scopeKey)
	}

	if err := s.storage.Put(ctx, enc); err != nil {
		return nil, fmt.Errorf("persisting item %s: %w", enc.ID, err)
	}

	doc := vector.Document{
		ID:        enc.ID,
		Embedding: enc.Embedding,
		Metadata:  indexMeta,
	}

	if err := s.index.Add(ctx, []vector.Document{doc}); err != nil {
		// Roll the ciphertext back so no committed item is unindexed.
		if delErr := s.storage.Delete(ctx, s.scopeKey, []string{enc.ID}); delErr != nil {
			s.logger.Error("rollback after index failure also failed",
				zap.String("id", enc.ID),
				zap.Error(delErr),
			)
		}
		return nil, fmt.Errorf("indexing item %s: %w", enc.ID, err)
	}

	s.logger.Debug("item committed",
		zap.String("id", enc.ID),
		zap.String("scope_key", s.scopeKey),
		zap.Int("embedding_dim", len(enc.Embedding)),
	)

	return &memory.StoreResult{
		ID:        enc.ID,
		ScopeKey:  s.scopeKey,
		CreatedAt: enc.CreatedAt,
	}, nil
}

// Query delegates nearest-neighbor search to the index, then loads and
// decrypts each match. A result whose ciphertext fails authentication is
// skipped (partial availability beats a failed search) and logged as a
// recoverable event.
func (s *Store) Query(ctx context.Context, embedding []float32, filters map[string]string, limit int) ([]Scored, error) {
	matches, err := s.index.Query(ctx, embedding, filters, limit)
	if err != nil {
		return nil, fmt.Errorf("querying index for scope %s: %w", s.scopeKey, err)
	}

	results := make([]Scored, 0, len(matches))
	for _, match := range matches {
		enc, err := s.storage.Get(ctx, s.scopeKey, match.ID)
		if err != nil {
			s.logger.Warn("indexed item missing from storage",
				zap.String("id", match.ID),
				zap.String("scope_key", s.scopeKey),
				zap.Error(err),
			)
			continue
		}

		item, err := s.codec.Decrypt(enc)
		if err != nil {
			if errors.Is(err, crypto.ErrDecrypt) {
				s.logger.Warn("skipping result that failed decryption",
					zap.String("id", match.ID),
					zap.Error(err),
				)
				continue
			}
			return nil, err
		}

		results = append(results, Scored{Item: item, Score: match.Score})
	}

	return results, nil
}

// Get loads and decrypts one item by id.
func (s *Store) Get(ctx context.Context, id string) (*memory.Item, error) {
	enc, err := s.storage.Get(ctx, s.scopeKey, id)
	if err != nil {
		return nil, err
	}
	return s.codec.Decrypt(enc)
}

// List loads and decrypts every live item in the scope, skipping items
// that fail decryption.
func (s *Store) List(ctx context.Context) ([]*memory.Item, error) {
	encs, err := s.storage.List(ctx, s.scopeKey)
	if err != nil {
		return nil, fmt.Errorf("listing scope %s: %w", s.scopeKey, err)
	}

	items := make([]*memory.Item, 0, len(encs))
	for _, enc := range encs {
		item, err := s.codec.Decrypt(enc)
		if err != nil {
			s.logger.Warn("skipping item that failed decryption",
				zap.String("id", enc.ID),
				zap.Error(err),
			)
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

// Delete removes items from storage and the index. Destructive.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if err := s.storage.Delete(ctx, s.scopeKey, ids); err != nil {
		return fmt.Errorf("deleting from storage: %w", err)
	}
	if err := s.index.Delete(ctx, ids); err != nil {
		return fmt.Errorf("deleting from index: %w", err)
	}
	return nil
}

// Archive flags items so queries and sync skip them. The index entries are
// removed; the ciphertext is retained.
func (s *Store) Archive(ctx context.Context, ids []string) error {
	if err := s.storage.SetArchived(ctx, s.scopeKey, ids, true); err != nil {
		return fmt.Errorf("archiving in storage: %w", err)
	}
	if err := s.index.Delete(ctx, ids); err != nil {
		return fmt.Errorf("removing archived items from index: %w", err)
	}
	return nil
}

// AnalyzePatterns aggregates an entity scope's items by content type. Pure
// read, no side effects; only meaningful for entity scopes.
func (s *Store) AnalyzePatterns(ctx context.Context) ([]memory.BehaviorPattern, error) {
	if s.scope.Kind != memory.KindEntity {
		return nil, fmt.Errorf("pattern analysis is entity-scope only, got %s", s.scope.Kind)
	}

	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	type agg struct {
		count      int
		confidence float64
		first      time.Time
		last       time.Time
	}
	byType := make(map[string]*agg)

	for _, item := range items {
		ct := item.Payload.Type
		if ct == "" {
			ct = "untyped"
		}

		a, ok := byType[ct]
		if !ok {
			a = &agg{first: item.CreatedAt, last: item.CreatedAt}
			byType[ct] = a
		}

		a.count++
		c := item.Payload.Confidence
		if c == 0 {
			c = 1.0
		}
		a.confidence += c
		if item.CreatedAt.Before(a.first) {
			a.first = item.CreatedAt
		}
		if item.CreatedAt.After(a.last) {
			a.last = item.CreatedAt
		}
	}

	patterns := make([]memory.BehaviorPattern, 0, len(byType))
	for ct, a := range byType {
		patterns = append(patterns, memory.BehaviorPattern{
			ContentType:   ct,
			Count:         a.count,
			AvgConfidence: a.confidence / float64(a.count),
			FirstSeen:     a.first,
			LastSeen:      a.last,
		})
	}

	return patterns, nil
}

// Healthy aggregates the health of the store's index handle.
func (s *Store) Healthy(ctx context.Context) bool {
	return s.index.Healthy(ctx)
}

// Scope returns the scope value this store serves.
func (s *Store) Scope() memory.Scope { return s.scope }

// Key returns the scope key this store serves.
func (s *Store) Key() string { return s.scopeKey }
