// Package inmemory provides an in-process implementation of the
// storage.Driver interface. Useful for tests and local development; nothing
// survives a restart.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/strataworks/strata/pkg/memory"
	"github.com/strataworks/strata/pkg/storage"
)

// Driver implements storage.Driver using in-process data structures.
type Driver struct {
	mu sync.RWMutex

	// items maps item id -> stored item.
	items map[string]*memory.EncryptedItem

	// scopes maps scope key -> item ids in insertion order.
	scopes map[string][]string
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		items:  make(map[string]*memory.EncryptedItem),
		scopes: make(map[string][]string),
	}
}

func (d *Driver) Put(_ context.Context, item *memory.EncryptedItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.items[item.ID]; exists {
		return storage.ErrDuplicate{ID: item.ID}
	}

	stored := *item
	d.items[item.ID] = &stored
	d.scopes[item.ScopeKey] = append(d.scopes[item.ScopeKey], item.ID)

	return nil
}

func (d *Driver) Get(_ context.Context, scopeKey, id string) (*memory.EncryptedItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	item, ok := d.items[id]
	if !ok || item.ScopeKey != scopeKey {
		return nil, storage.ErrNotFound{ID: id}
	}

	copied := *item
	return &copied, nil
}

func (d *Driver) List(_ context.Context, scopeKey string) ([]*memory.EncryptedItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := d.scopes[scopeKey]
	out := make([]*memory.EncryptedItem, 0, len(ids))
	for _, id := range ids {
		item, ok := d.items[id]
		if !ok || item.Archived {
			continue
		}
		copied := *item
		out = append(out, &copied)
	}

	return out, nil
}

func (d *Driver) ListSince(_ context.Context, since time.Time) ([]*memory.EncryptedItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*memory.EncryptedItem, 0)
	for _, item := range d.items {
		if item.Archived || item.CreatedAt.Before(since) {
			continue
		}
		copied := *item
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (d *Driver) ListAll(_ context.Context) ([]*memory.EncryptedItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*memory.EncryptedItem, 0, len(d.items))
	for _, item := range d.items {
		copied := *item
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (d *Driver) GetByIDs(_ context.Context, ids []string) ([]*memory.EncryptedItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*memory.EncryptedItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := d.items[id]; ok {
			copied := *item
			out = append(out, &copied)
		}
	}

	return out, nil
}

func (d *Driver) Delete(_ context.Context, scopeKey string, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if item, ok := d.items[id]; ok && item.ScopeKey == scopeKey {
			delete(d.items, id)
			drop[id] = true
		}
	}

	kept := d.scopes[scopeKey][:0]
	for _, id := range d.scopes[scopeKey] {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	d.scopes[scopeKey] = kept

	return nil
}

func (d *Driver) SetArchived(_ context.Context, scopeKey string, ids []string, archived bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		if item, ok := d.items[id]; ok && item.ScopeKey == scopeKey {
			item.Archived = archived
		}
	}

	return nil
}

func (d *Driver) UpdateCiphertext(_ context.Context, id string, ciphertext []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	item, ok := d.items[id]
	if !ok {
		return storage.ErrNotFound{ID: id}
	}

	item.Ciphertext = append([]byte(nil), ciphertext...)
	return nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

var _ storage.Driver = (*Driver)(nil)
