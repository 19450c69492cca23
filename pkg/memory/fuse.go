package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FuseStrategy names how multiple related items are combined into one
// derived payload.
type FuseStrategy string

const (
	// FuseWeighted orders fragments by confidence scaled by recency.
	FuseWeighted FuseStrategy = "weighted"

	// FuseConsensus keeps the fragments the majority of sources agree on.
	FuseConsensus FuseStrategy = "consensus"

	// FuseHierarchical prefers wider scopes (collective over relation over
	// entity), then higher priority.
	FuseHierarchical FuseStrategy = "hierarchical"

	// FuseTemporal orders fragments chronologically, newest last so the
	// most recent knowledge dominates.
	FuseTemporal FuseStrategy = "temporal"
)

// Fuse combines related items into one derived payload under the named
// strategy. The originals are untouched; callers decide whether to persist
// the result and whether to retain the sources.
//
// The mean confidence of the supporting items must meet requiredConsensus,
// boundary inclusive, or a ConsensusError is returned.
func Fuse(items []*Item, strategy FuseStrategy, requiredConsensus float64) (*Content, error) {
	if len(items) == 0 {
		return nil, ErrNoMemoriesToFuse
	}

	confidence := aggregateConfidence(items)
	if confidence < requiredConsensus {
		return nil, &ConsensusError{Required: requiredConsensus, Actual: confidence}
	}

	ordered := make([]*Item, len(items))
	copy(ordered, items)

	switch strategy {
	case FuseWeighted:
		sortByWeight(ordered)
	case FuseConsensus:
		ordered = consensusSubset(ordered)
		if len(ordered) == 0 {
			return nil, &ConsensusError{Required: requiredConsensus, Actual: 0}
		}
	case FuseHierarchical:
		sortByHierarchy(ordered)
	case FuseTemporal:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		})
	default:
		return nil, fmt.Errorf("unknown fusion strategy %q", strategy)
	}

	texts := make([]string, 0, len(ordered))
	sources := make([]string, 0, len(ordered))
	for _, it := range ordered {
		if t := strings.TrimSpace(it.Payload.Text); t != "" {
			texts = append(texts, t)
		}
		sources = append(sources, it.ID)
	}

	return &Content{
		Text: strings.Join(texts, "\n"),
		Type: "fused",
		Meta: map[string]string{
			"fusion_strategy": string(strategy),
			"source_count":    fmt.Sprintf("%d", len(sources)),
			"sources":         strings.Join(sources, ","),
		},
		Confidence: confidence,
	}, nil
}

// aggregateConfidence is the mean payload confidence. Items that never set
// a confidence count as fully trusted.
func aggregateConfidence(items []*Item) float64 {
	var sum float64
	for _, it := range items {
		c := it.Payload.Confidence
		if c == 0 {
			c = 1.0
		}
		sum += c
	}
	return sum / float64(len(items))
}

// sortByWeight orders items by confidence scaled by recency, strongest
// first. Recency decays linearly across the observed time span.
func sortByWeight(items []*Item) {
	var oldest, newest time.Time
	for i, it := range items {
		if i == 0 || it.CreatedAt.Before(oldest) {
			oldest = it.CreatedAt
		}
		if i == 0 || it.CreatedAt.After(newest) {
			newest = it.CreatedAt
		}
	}

	span := newest.Sub(oldest)
	weight := func(it *Item) float64 {
		c := it.Payload.Confidence
		if c == 0 {
			c = 1.0
		}
		if span <= 0 {
			return c
		}
		recency := float64(it.CreatedAt.Sub(oldest)) / float64(span)
		return c * (0.5 + 0.5*recency)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return weight(items[i]) > weight(items[j])
	})
}

// consensusSubset keeps only the items whose text is shared by a strict
// majority of the sources. When no text reaches a majority nothing is kept.
func consensusSubset(items []*Item) []*Item {
	counts := make(map[string]int, len(items))
	for _, it := range items {
		counts[strings.TrimSpace(it.Payload.Text)]++
	}

	majority := len(items)/2 + 1
	kept := make([]*Item, 0, len(items))
	seen := make(map[string]bool, len(counts))
	for _, it := range items {
		text := strings.TrimSpace(it.Payload.Text)
		if counts[text] >= majority && !seen[text] {
			seen[text] = true
			kept = append(kept, it)
		}
	}
	return kept
}

var scopeRank = map[ScopeKind]int{
	KindCollective: 0,
	KindRelation:   1,
	KindEntity:     2,
}

var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityNormal:   2,
}

func sortByHierarchy(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := scopeRank[items[i].Scope.Kind], scopeRank[items[j].Scope.Kind]
		if si != sj {
			return si < sj
		}
		return priorityRank[items[i].Priority] < priorityRank[items[j].Priority]
	})
}
