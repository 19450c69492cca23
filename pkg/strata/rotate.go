package strata

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/memory/crypto"
)

// RotateKey reseals every stored item, archived included, under a new key.
// Writes are blocked for the duration; reads keep working because the old
// codec stays in place until the last item is resealed.
//
// A failed rotation leaves a mix of old-key and new-key ciphertext.
// Retrying with the same new key is safe: items already resealed decrypt
// under the new codec and are resealed again.
func (m *Manager) RotateKey(ctx context.Context, newKey []byte) error {
	next, err := crypto.NewCodec(newKey)
	if err != nil {
		return fmt.Errorf("building rotation codec: %w", err)
	}

	m.rotMu.Lock()
	defer m.rotMu.Unlock()

	items, err := m.storage.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("listing items for rotation: %w", err)
	}

	for _, enc := range items {
		item, err := m.codec.Decrypt(enc)
		if err != nil {
			// Already resealed by an interrupted earlier rotation.
			if errors.Is(err, crypto.ErrDecrypt) {
				if _, retryErr := next.Decrypt(enc); retryErr == nil {
					continue
				}
			}
			return fmt.Errorf("rotation cannot read item %s: %w", enc.ID, err)
		}

		resealed, err := next.Encrypt(item)
		if err != nil {
			return fmt.Errorf("resealing item %s: %w", enc.ID, err)
		}

		if err := m.storage.UpdateCiphertext(ctx, enc.ID, resealed.Ciphertext); err != nil {
			return fmt.Errorf("writing resealed item %s: %w", enc.ID, err)
		}
	}

	m.codec = next
	m.registry.SetCodec(next)

	m.logger.Info("encryption key rotated",
		zap.Int("items_resealed", len(items)),
	)

	return nil
}
