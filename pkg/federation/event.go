package federation

import (
	"time"

	"github.com/google/uuid"

	"github.com/strataworks/strata/pkg/memory"
)

const (
	// SchemaVersionV1 is the first version of the federation event schema.
	SchemaVersionV1 = 1

	// EventTypeItemFederated is emitted when a committed item is replicated
	// to a peer.
	EventTypeItemFederated = "strata.item.federated"
)

// ItemFederatedEvent is the transport-neutral envelope for a replicated
// item. Only the encrypted record travels; peers never see plaintext
// content.
type ItemFederatedEvent struct {
	SchemaVersion int                   `json:"schema_version"`
	EventType     string                `json:"event_type"`
	EventID       string                `json:"event_id"`
	EmittedAt     time.Time             `json:"emitted_at"`
	SourceNode    string                `json:"source_node,omitempty"`
	TargetNode    string                `json:"target_node"`
	Item          *memory.EncryptedItem `json:"item"`
}

// NewItemFederatedEvent wraps an encrypted item in a v1 envelope addressed
// to the given node.
func NewItemFederatedEvent(sourceNode string, node *Node, item *memory.EncryptedItem) *ItemFederatedEvent {
	return &ItemFederatedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeItemFederated,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		SourceNode:    sourceNode,
		TargetNode:    node.ID,
		Item:          item,
	}
}
