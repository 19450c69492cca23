// Package crypto seals memory items with authenticated encryption before
// they reach persistence. The codec is stateless aside from the key, which
// is provisioned at construction and shared read-only afterwards; rotation
// is a facade-level operation that swaps the whole codec.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/strataworks/strata/pkg/memory"
)

// KeySize is the required symmetric key length (AES-256).
const KeySize = 32

var (
	// ErrEncrypt wraps serialization failures on the encrypt path.
	ErrEncrypt = errors.New("encryption failed")

	// ErrDecrypt wraps authentication and malformed-ciphertext failures.
	// Decrypt failures on search result decoding are recoverable: the
	// coordinator skips the offending result and continues.
	ErrDecrypt = errors.New("decryption failed")
)

// Codec encrypts and decrypts memory items with AES-256-GCM.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a codec around a 32-byte key. A missing or short key is a
// configuration error: the codec refuses construction rather than failing
// on first use.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals the full item (payload, embedding, scope, metadata) into
// an EncryptedItem. The embedding is additionally kept in plaintext on the
// envelope so the vector index can operate on it without the key.
func (c *Codec) Encrypt(item *memory.Item) (*memory.EncryptedItem, error) {
	plaintext, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("%w: serializing item %s: %v", ErrEncrypt, item.ID, err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: generating nonce: %v", ErrEncrypt, err)
	}

	// Nonce is prepended so the ciphertext is self-describing.
	sealed := c.aead.Seal(nonce, nonce, plaintext, []byte(item.ID))

	embedding := make([]float32, len(item.Embedding))
	copy(embedding, item.Embedding)

	return &memory.EncryptedItem{
		ID:         item.ID,
		ScopeKey:   item.Scope.Key(),
		Ciphertext: sealed,
		Embedding:  embedding,
		Priority:   item.Priority,
		Policy:     item.Policy,
		CreatedAt:  item.CreatedAt,
	}, nil
}

// Decrypt opens an EncryptedItem back into the original item. Truncated or
// tampered ciphertext fails the authentication tag and yields ErrDecrypt.
func (c *Codec) Decrypt(enc *memory.EncryptedItem) (*memory.Item, error) {
	if len(enc.Ciphertext) < c.aead.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext for %s truncated", ErrDecrypt, enc.ID)
	}

	nonce := enc.Ciphertext[:c.aead.NonceSize()]
	sealed := enc.Ciphertext[c.aead.NonceSize():]

	plaintext, err := c.aead.Open(nil, nonce, sealed, []byte(enc.ID))
	if err != nil {
		return nil, fmt.Errorf("%w: opening item %s: %v", ErrDecrypt, enc.ID, err)
	}

	var item memory.Item
	if err := json.Unmarshal(plaintext, &item); err != nil {
		return nil, fmt.Errorf("%w: decoding item %s: %v", ErrDecrypt, enc.ID, err)
	}

	return &item, nil
}
