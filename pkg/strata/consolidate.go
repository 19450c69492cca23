package strata

import (
	"context"
	"fmt"

	"github.com/strataworks/strata/pkg/consent"
	"github.com/strataworks/strata/pkg/memory"
)

// ConsolidateStrategy names a maintenance operation over existing items.
type ConsolidateStrategy string

const (
	// StrategyMerge fuses the items into one new item in the same scope.
	StrategyMerge ConsolidateStrategy = "merge"

	// StrategyArchive flags the items so queries and sync skip them.
	StrategyArchive ConsolidateStrategy = "archive"

	// StrategyDelete removes the items permanently.
	StrategyDelete ConsolidateStrategy = "delete"

	// StrategyPromote copies the items into a wider scope.
	StrategyPromote ConsolidateStrategy = "promote"
)

// ConsolidateRequest describes one consolidation pass.
type ConsolidateRequest struct {
	Scope    memory.Scope
	IDs      []string
	Strategy ConsolidateStrategy

	// PreserveOriginals archives the source items instead of deleting them.
	// Only read by merge and promote.
	PreserveOriginals bool

	// PromoteTo is the destination scope for promote.
	PromoteTo *memory.Scope

	// RequiredConsensus is the floor the sources of a merge must clear.
	// Zero falls back to the gate's configured floor.
	RequiredConsensus float64

	// Gate inputs for writes the strategy performs into relation or
	// collective scopes.
	Consent   *consent.MutualConsent
	Consensus *consent.ConsensusLevel
	Mentor    *consent.MentorValidation
}

// ConsolidateResult reports what a consolidation pass did.
type ConsolidateResult struct {
	Strategy   ConsolidateStrategy `json:"strategy"`
	NewItemIDs []string            `json:"new_item_ids,omitempty"`
	Archived   []string            `json:"archived,omitempty"`
	Deleted    []string            `json:"deleted,omitempty"`
}

// Consolidate runs one maintenance pass over the named items. Merge and
// promote create new items through the full write path, so gate inputs are
// required when the destination scope demands them.
func (m *Manager) Consolidate(ctx context.Context, req ConsolidateRequest) (*ConsolidateResult, error) {
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}
	if len(req.IDs) == 0 {
		return nil, fmt.Errorf("consolidation requires item ids")
	}

	switch req.Strategy {
	case StrategyMerge:
		return m.merge(ctx, req)
	case StrategyArchive:
		return m.archive(ctx, req)
	case StrategyDelete:
		return m.delete(ctx, req)
	case StrategyPromote:
		return m.promote(ctx, req)
	default:
		return nil, fmt.Errorf("unknown consolidation strategy %q", req.Strategy)
	}
}

func (m *Manager) merge(ctx context.Context, req ConsolidateRequest) (*ConsolidateResult, error) {
	items, err := m.load(ctx, req.Scope, req.IDs)
	if err != nil {
		return nil, err
	}

	fused, err := memory.Fuse(items, memory.FuseWeighted, m.consensusFloor(req.RequiredConsensus))
	if err != nil {
		return nil, err
	}

	stored, err := m.Store(ctx, StoreRequest{
		Scope:     req.Scope,
		Payload:   *fused,
		Consent:   req.Consent,
		Consensus: req.Consensus,
		Mentor:    req.Mentor,
	})
	if err != nil {
		return nil, fmt.Errorf("storing merged item: %w", err)
	}

	result := &ConsolidateResult{
		Strategy:   StrategyMerge,
		NewItemIDs: []string{stored.ID},
	}

	if err := m.retire(ctx, req, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (m *Manager) archive(ctx context.Context, req ConsolidateRequest) (*ConsolidateResult, error) {
	store, err := m.registry.Get(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	if err := store.Archive(ctx, req.IDs); err != nil {
		return nil, err
	}

	return &ConsolidateResult{Strategy: StrategyArchive, Archived: req.IDs}, nil
}

func (m *Manager) delete(ctx context.Context, req ConsolidateRequest) (*ConsolidateResult, error) {
	store, err := m.registry.Get(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	if err := store.Delete(ctx, req.IDs); err != nil {
		return nil, err
	}

	return &ConsolidateResult{Strategy: StrategyDelete, Deleted: req.IDs}, nil
}

func (m *Manager) promote(ctx context.Context, req ConsolidateRequest) (*ConsolidateResult, error) {
	if req.PromoteTo == nil {
		return nil, fmt.Errorf("promote requires a destination scope")
	}

	items, err := m.load(ctx, req.Scope, req.IDs)
	if err != nil {
		return nil, err
	}

	result := &ConsolidateResult{Strategy: StrategyPromote}
	for _, item := range items {
		stored, err := m.Store(ctx, StoreRequest{
			Scope:     *req.PromoteTo,
			Payload:   item.Payload,
			Embedding: item.Embedding,
			Priority:  item.Priority,
			Consent:   req.Consent,
			Consensus: req.Consensus,
			Mentor:    req.Mentor,
		})
		if err != nil {
			return nil, fmt.Errorf("promoting item %s: %w", item.ID, err)
		}
		result.NewItemIDs = append(result.NewItemIDs, stored.ID)
	}

	if err := m.retire(ctx, req, result); err != nil {
		return nil, err
	}

	return result, nil
}

// retire removes or archives the source items of a merge or promote.
func (m *Manager) retire(ctx context.Context, req ConsolidateRequest, result *ConsolidateResult) error {
	store, err := m.registry.Get(ctx, req.Scope)
	if err != nil {
		return err
	}

	if req.PreserveOriginals {
		if err := store.Archive(ctx, req.IDs); err != nil {
			return fmt.Errorf("archiving originals: %w", err)
		}
		result.Archived = req.IDs
		return nil
	}

	if err := store.Delete(ctx, req.IDs); err != nil {
		return fmt.Errorf("deleting originals: %w", err)
	}
	result.Deleted = req.IDs
	return nil
}
