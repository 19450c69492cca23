// Package consent implements the write gate for Relation and Collective
// scopes. The gate is evaluated once per write attempt and holds no state
// about past attempts; a rejected write never reaches a layer store or the
// federation manager because the facade places the gate strictly between
// itself and the store on the write path.
//
// Entity writes bypass the gate entirely: an agent may always write to its
// own private memory.
package consent

import (
	"github.com/strataworks/strata/pkg/memory"
)

const (
	// MinimumTrust is the exclusive trust floor for relation writes.
	MinimumTrust = 0.5

	// DefaultMinimumConsensus is the inclusive consensus floor for
	// collective writes when the deployment does not configure one.
	DefaultMinimumConsensus = 0.8
)

// MutualConsent carries the two-party agreement required for a Relation
// write.
type MutualConsent struct {
	AgentA     string  `json:"agent_a"`
	AgentB     string  `json:"agent_b"`
	ConsentA   bool    `json:"consent_a"`
	ConsentB   bool    `json:"consent_b"`
	TrustLevel float64 `json:"trust_level"`
}

// Valid reports whether both parties consented and trust clears the floor.
// The trust bound is exclusive: exactly MinimumTrust is rejected.
func (m MutualConsent) Valid() bool {
	return m.ConsentA && m.ConsentB && m.TrustLevel > MinimumTrust
}

// ConsensusLevel carries the agreement score for a Collective write.
type ConsensusLevel struct {
	Level        float64  `json:"level"`
	Participants []string `json:"participants,omitempty"`
	Votes        int      `json:"votes,omitempty"`
}

// MentorValidation is an optional additional gate for Collective writes,
// enabled per deployment.
type MentorValidation struct {
	MentorID string `json:"mentor_id"`
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Gate validates write preconditions for Relation and Collective scopes.
type Gate struct {
	minimumConsensus float64
	requireMentor    bool
}

// Config holds gate configuration.
type Config struct {
	// MinimumConsensus is the inclusive floor for collective writes.
	// Defaults to DefaultMinimumConsensus when zero.
	MinimumConsensus float64

	// RequireMentor additionally demands an approving MentorValidation on
	// collective writes.
	RequireMentor bool
}

// NewGate creates a gate from configuration.
func NewGate(c Config) *Gate {
	minimum := c.MinimumConsensus
	if minimum == 0 {
		minimum = DefaultMinimumConsensus
	}

	return &Gate{
		minimumConsensus: minimum,
		requireMentor:    c.RequireMentor,
	}
}

// MinimumConsensus returns the configured inclusive consensus floor.
func (g *Gate) MinimumConsensus() float64 { return g.minimumConsensus }

// AuthorizeRelation admits a Relation write when both parties consented and
// trust exceeds the floor. Missing consent fails regardless of trust.
func (g *Gate) AuthorizeRelation(mc *MutualConsent) error {
	if mc == nil {
		return &memory.ConsentError{
			RequiredTrust: MinimumTrust,
			Reason:        "relation write without mutual consent",
		}
	}

	if !mc.ConsentA || !mc.ConsentB {
		return &memory.ConsentError{
			RequiredTrust: MinimumTrust,
			ActualTrust:   mc.TrustLevel,
			Reason:        "both parties must consent",
		}
	}

	if mc.TrustLevel <= MinimumTrust {
		return &memory.ConsentError{
			RequiredTrust: MinimumTrust,
			ActualTrust:   mc.TrustLevel,
			Reason:        "trust level too low",
		}
	}

	return nil
}

// AuthorizeCollective admits a Collective write when the consensus level
// meets the configured floor, boundary inclusive, and, when mentor gating
// is enabled, a mentor approved the write.
func (g *Gate) AuthorizeCollective(cl *ConsensusLevel, mv *MentorValidation) error {
	if cl == nil {
		return &memory.ConsensusError{Required: g.minimumConsensus, Actual: 0}
	}

	if cl.Level < g.minimumConsensus {
		return &memory.ConsensusError{Required: g.minimumConsensus, Actual: cl.Level}
	}

	if g.requireMentor && (mv == nil || !mv.Approved) {
		actual := cl.Level
		return &memory.ConsensusError{Required: g.minimumConsensus, Actual: actual}
	}

	return nil
}
