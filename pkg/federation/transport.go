package federation

import (
	"context"

	"github.com/strataworks/strata/pkg/memory"
)

// Transport delivers encrypted items to peer nodes. Peers only ever see
// ciphertext plus the plaintext envelope; the wire format is the
// transport's choice as long as the envelope survives intact.
type Transport interface {
	// Send delivers one encrypted item to a node.
	Send(ctx context.Context, node *Node, item *memory.EncryptedItem) error

	// Ping checks whether a node is reachable. Used by periodic health
	// checks.
	Ping(ctx context.Context, node *Node) error

	// Close releases transport resources.
	Close() error
}
