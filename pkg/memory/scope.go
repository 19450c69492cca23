package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ScopeKind identifies which isolation namespace a scope belongs to.
type ScopeKind string

const (
	// KindEntity is a single agent's private memory.
	KindEntity ScopeKind = "entity"

	// KindRelation is shared memory between an unordered pair of agents.
	KindRelation ScopeKind = "relation"

	// KindCollective is shared memory for a named tier.
	KindCollective ScopeKind = "collective"
)

// Scope is the isolation namespace of a memory item. Exactly one of the
// constructor functions should be used; the zero value is not a valid scope.
type Scope struct {
	Kind ScopeKind `json:"kind"`

	// AgentID is set for Entity scopes.
	AgentID string `json:"agent_id,omitempty"`

	// AgentA and AgentB are set for Relation scopes. Order does not matter;
	// Key() resolves both orderings to the same store.
	AgentA string `json:"agent_a,omitempty"`
	AgentB string `json:"agent_b,omitempty"`

	// Tier is set for Collective scopes.
	Tier string `json:"tier,omitempty"`
}

// EntityScope returns the private scope of a single agent.
func EntityScope(agentID string) Scope {
	return Scope{Kind: KindEntity, AgentID: agentID}
}

// RelationScope returns the shared scope of two agents. The pair is
// unordered: RelationScope(a, b) and RelationScope(b, a) resolve to the
// same underlying store.
func RelationScope(agentA, agentB string) Scope {
	return Scope{Kind: KindRelation, AgentA: agentA, AgentB: agentB}
}

// CollectiveScope returns the shared scope for a collective tier.
func CollectiveScope(tier string) Scope {
	return Scope{Kind: KindCollective, Tier: tier}
}

// Key returns the store key for the scope. Keys are stable, filesystem and
// collection-name safe, and unique per scope value.
func (s Scope) Key() string {
	switch s.Kind {
	case KindEntity:
		return "ent_" + qualify(s.AgentID)
	case KindRelation:
		a, b := s.AgentA, s.AgentB
		if b < a {
			a, b = b, a
		}
		sum := sha256.Sum256([]byte(a + "\x00" + b))
		return "rel_" + hex.EncodeToString(sum[:8])
	case KindCollective:
		return "col_" + qualify(s.Tier)
	default:
		return ""
	}
}

// Validate reports whether the scope carries the fields its kind requires.
func (s Scope) Validate() error {
	switch s.Kind {
	case KindEntity:
		if s.AgentID == "" {
			return fmt.Errorf("entity scope requires agent_id")
		}
	case KindRelation:
		if s.AgentA == "" || s.AgentB == "" {
			return fmt.Errorf("relation scope requires both agents")
		}
		if s.AgentA == s.AgentB {
			return fmt.Errorf("relation scope requires two distinct agents")
		}
	case KindCollective:
		if s.Tier == "" {
			return fmt.Errorf("collective scope requires a tier")
		}
	default:
		return fmt.Errorf("unknown scope kind %q", s.Kind)
	}
	return nil
}

// Agents returns the agent identifiers participating in the scope.
// Entity scopes have one, relation scopes two, collective scopes none.
func (s Scope) Agents() []string {
	switch s.Kind {
	case KindEntity:
		return []string{s.AgentID}
	case KindRelation:
		return []string{s.AgentA, s.AgentB}
	default:
		return nil
	}
}

// qualify maps an identifier to a collection-name safe form. The readable
// sanitized prefix makes operational debugging easier; the appended digest
// of the raw identifier keeps distinct ids distinct even when sanitization
// folds them to the same prefix ("agent.7" vs "agent_7").
func qualify(id string) string {
	sum := sha256.Sum256([]byte(id))
	return sanitize(id) + "_" + hex.EncodeToString(sum[:4])
}

func sanitize(id string) string {
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
