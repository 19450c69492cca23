package memory

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders items for federation dispatch. It has no bearing on
// retention; the store never evicts.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// FederationPolicy determines which peer nodes receive a copy of an item.
type FederationPolicy string

const (
	// FederationDisabled keeps the item local.
	FederationDisabled FederationPolicy = "disabled"

	// FederationAgentSpecific replicates to nodes serving the item's agent.
	FederationAgentSpecific FederationPolicy = "agent_specific"

	// FederationBilateral replicates to nodes serving either relation
	// participant.
	FederationBilateral FederationPolicy = "bilateral"

	// FederationBroadcast replicates to every registered node.
	FederationBroadcast FederationPolicy = "broadcast"
)

// SearchableContent is the capability a payload must expose to be indexed.
type SearchableContent interface {
	// SearchableText returns the text the embedding is computed from.
	SearchableText() string

	// Metadata returns filterable key/value pairs for the index.
	Metadata() map[string]string
}

// Content is the concrete payload carried by an item. Arbitrary
// SearchableContent implementations are snapshotted into a Content at store
// time so the payload can round-trip through the crypto codec.
type Content struct {
	Text       string            `json:"text"`
	Type       string            `json:"type,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
}

// SearchableText implements SearchableContent.
func (c Content) SearchableText() string { return c.Text }

// Metadata implements SearchableContent.
func (c Content) Metadata() map[string]string { return c.Meta }

// Snapshot copies an arbitrary SearchableContent into a Content payload.
// Content values pass through unchanged so confidence survives.
func Snapshot(sc SearchableContent) Content {
	if c, ok := sc.(Content); ok {
		if c.Confidence == 0 {
			c.Confidence = 1.0
		}
		return c
	}

	meta := sc.Metadata()
	copied := make(map[string]string, len(meta))
	for k, v := range meta {
		copied[k] = v
	}

	return Content{
		Text:       sc.SearchableText(),
		Type:       copied["content_type"],
		Meta:       copied,
		Confidence: 1.0,
	}
}

// Item is the unit of storage. Immutable after creation.
type Item struct {
	ID        string           `json:"id"`
	Payload   Content          `json:"payload"`
	Embedding []float32        `json:"embedding"`
	Scope     Scope            `json:"scope"`
	Priority  Priority         `json:"priority"`
	Policy    FederationPolicy `json:"policy"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewItem creates an item with a fresh id and creation timestamp.
func NewItem(payload Content, embedding []float32, scope Scope, priority Priority, policy FederationPolicy) *Item {
	if priority == "" {
		priority = PriorityNormal
	}
	if policy == "" {
		policy = FederationDisabled
	}

	return &Item{
		ID:        uuid.NewString(),
		Payload:   payload,
		Embedding: embedding,
		Scope:     scope,
		Priority:  priority,
		Policy:    policy,
		CreatedAt: time.Now().UTC(),
	}
}

// EncryptedItem is the persisted form of an item. The payload, scope and
// metadata are sealed together in Ciphertext; the embedding is kept in
// plaintext so the external vector index can operate on it, a deliberate
// confidentiality/performance tradeoff.
type EncryptedItem struct {
	ID         string           `json:"id"`
	ScopeKey   string           `json:"scope_key"`
	Ciphertext []byte           `json:"ciphertext"`
	Embedding  []float32        `json:"embedding"`
	Priority   Priority         `json:"priority"`
	Policy     FederationPolicy `json:"policy"`
	CreatedAt  time.Time        `json:"created_at"`
	Archived   bool             `json:"archived,omitempty"`
}

// StoreResult reports a committed write.
type StoreResult struct {
	ID        string    `json:"id"`
	ScopeKey  string    `json:"scope_key"`
	CreatedAt time.Time `json:"created_at"`

	// Federated is true when the write was handed to the federation
	// dispatcher. It does not imply peers have acknowledged the copy.
	Federated bool `json:"federated"`
}

// MutationRecord links a new item to the item it supersedes. Relation
// content is never edited in place; a mutation is a new item plus one of
// these records.
type MutationRecord struct {
	ItemID     string    `json:"item_id"`
	Supersedes string    `json:"supersedes"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// BehaviorPattern is an aggregate over an entity scope's items, used by
// self-reflection features. Produced by pure reads only.
type BehaviorPattern struct {
	ContentType   string    `json:"content_type"`
	Count         int       `json:"count"`
	AvgConfidence float64   `json:"avg_confidence"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}
