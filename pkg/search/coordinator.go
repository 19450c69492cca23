// Package search provides the semantic search coordinator: it resolves
// query text to an embedding, fans the query out to the requested layer
// stores in parallel, and merges the partial result lists into one ranking.
package search

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/embeddings"
	"github.com/strataworks/strata/pkg/layer"
	"github.com/strataworks/strata/pkg/memory"
)

// DefaultLimit caps result lists when the caller does not ask for a size.
const DefaultLimit = 10

// RankedResult is a search hit with its similarity score.
type RankedResult struct {
	Item  *memory.Item `json:"item"`
	Score float32      `json:"score"`
}

// Coordinator fans queries out across layer stores.
type Coordinator struct {
	registry *layer.Registry
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// NewCoordinator creates a search coordinator.
func NewCoordinator(registry *layer.Registry, embedder embeddings.Embedder, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		registry: registry,
		embedder: embedder,
		logger:   logger,
	}
}

// Search embeds the query, queries every requested scope concurrently,
// and merges the partial lists: similarity descending, ties broken by the
// more recent item, truncated to limit. Results that failed decryption
// were already dropped inside the layer stores and never surface here.
func (c *Coordinator) Search(ctx context.Context, query string, scopes []memory.Scope, filters map[string]string, limit int) ([]RankedResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}

	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// Per-scope queries are independent; fan out and collect. The merge
	// below is a pure reduction over the completed partial lists.
	type partial struct {
		scoped []layer.Scored
		err    error
	}

	partials := make([]partial, len(scopes))
	var wg sync.WaitGroup

	for i, scope := range scopes {
		wg.Add(1)
		go func(i int, scope memory.Scope) {
			defer wg.Done()

			store, err := c.registry.Get(ctx, scope)
			if err != nil {
				partials[i] = partial{err: err}
				return
			}

			scored, err := store.Query(ctx, embedding, filters, limit)
			partials[i] = partial{scoped: scored, err: err}
		}(i, scope)
	}

	wg.Wait()

	merged := make([]RankedResult, 0, limit*len(scopes))
	for i, p := range partials {
		if p.err != nil {
			c.logger.Warn("scope query failed",
				zap.String("scope_key", scopes[i].Key()),
				zap.Error(p.err),
			)
			return nil, fmt.Errorf("querying scope %s: %w", scopes[i].Key(), p.err)
		}
		for _, s := range p.scoped {
			merged = append(merged, RankedResult{Item: s.Item, Score: s.Score})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Item.CreatedAt.After(merged[j].Item.CreatedAt)
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}

	c.logger.Debug("search merged",
		zap.String("query", query),
		zap.Int("scopes", len(scopes)),
		zap.Int("results", len(merged)),
	)

	return merged, nil
}
