package vector

import "errors"

var (
	// ErrNotFound is returned when a document is not found in the index.
	ErrNotFound = errors.New("document not found")

	// ErrConnection is returned when the index connection fails.
	ErrConnection = errors.New("vector index connection failed")

	// ErrDimension is returned when an embedding does not match the
	// configured dimensionality.
	ErrDimension = errors.New("embedding dimension mismatch")
)
