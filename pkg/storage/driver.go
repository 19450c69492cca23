// Package storage defines persistence for encrypted memory items.
//
// Drivers only ever see ciphertext plus the plaintext envelope fields the
// index and the federation manager need (scope key, embedding, priority,
// policy, timestamps). Scope isolation is enforced above the driver: every
// scoped read carries the scope key of the layer store issuing it.
//
// Drivers are pluggable via configuration:
//
//	[storage]
//	provider = "sqlite"   # or "postgres", "inmemory"
package storage

import (
	"context"
	"time"

	"github.com/strataworks/strata/pkg/memory"
)

// Driver persists encrypted memory items.
type Driver interface {
	// Put stores an encrypted item. Item ids are unique; storing an id
	// twice is a driver error, not an update. Items are immutable.
	Put(ctx context.Context, item *memory.EncryptedItem) error

	// Get retrieves one item by scope key and id.
	Get(ctx context.Context, scopeKey, id string) (*memory.EncryptedItem, error)

	// List returns all non-archived items in one scope, oldest first.
	List(ctx context.Context, scopeKey string) ([]*memory.EncryptedItem, error)

	// ListSince returns all non-archived items created at or after the
	// given time across every scope, oldest first. Used by incremental
	// federation sync.
	ListSince(ctx context.Context, since time.Time) ([]*memory.EncryptedItem, error)

	// ListAll returns every item, archived included, oldest first. Only the
	// key-rotation path may call this; rotation must reseal archived
	// ciphertext too or it becomes unreadable under the new key.
	ListAll(ctx context.Context) ([]*memory.EncryptedItem, error)

	// GetByIDs retrieves items by id across scopes. Missing ids are
	// silently omitted. Used by selective federation sync.
	GetByIDs(ctx context.Context, ids []string) ([]*memory.EncryptedItem, error)

	// Delete removes items from a scope. Destructive and non-reversible.
	Delete(ctx context.Context, scopeKey string, ids []string) error

	// SetArchived flags items so List and ListSince skip them. The
	// ciphertext is retained.
	SetArchived(ctx context.Context, scopeKey string, ids []string, archived bool) error

	// UpdateCiphertext swaps the sealed bytes of an existing item in
	// place. Only the key-rotation path may call this.
	UpdateCiphertext(ctx context.Context, id string, ciphertext []byte) error

	// Close releases driver resources.
	Close() error
}
