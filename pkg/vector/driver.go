// Package vector provides interfaces and implementations for the external
// vector index service consumed by layer stores.
package vector

import "context"

// Document represents an indexed item: its id, plaintext embedding, and the
// filterable metadata forwarded by the layer store. The document body itself
// never reaches the index; only ciphertext is persisted, elsewhere.
type Document struct {
	// ID is the memory item id.
	ID string

	// Embedding is the vector representation of the item content.
	Embedding []float32

	// Metadata holds filterable key/value pairs (content_type, agent_id, …).
	Metadata map[string]string
}

// Result represents a search result with similarity score.
type Result struct {
	Document

	// Score is the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and nearest-neighbor retrieval of embeddings.
// Each layer store owns its driver handle exclusively; drivers are never
// shared across scopes.
type Driver interface {
	// Add indexes documents. Re-adding an existing ID updates it.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK documents most similar to the embedding,
	// restricted to those whose metadata matches every filter entry.
	Query(ctx context.Context, embedding []float32, filters map[string]string, topK int) ([]Result, error)

	// Get retrieves documents by their IDs. Missing ids are omitted.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Healthy reports whether the index is reachable and serviceable.
	Healthy(ctx context.Context) bool

	// Close releases any resources held by the driver.
	Close() error
}

// Provider opens one exclusively-owned driver per collection. Layer stores
// use it to lazily create their backing index on first use per scope key.
type Provider interface {
	// Open creates or opens the named collection.
	Open(ctx context.Context, collection string) (Driver, error)

	// Close releases provider-level resources shared by opened drivers.
	Close() error
}
