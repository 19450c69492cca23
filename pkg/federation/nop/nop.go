// Package nop provides a no-op federation transport used for tests and
// disabled mode.
package nop

import (
	"context"
	"errors"

	"github.com/strataworks/strata/pkg/federation"
	"github.com/strataworks/strata/pkg/memory"
)

// ErrNilItem indicates a nil item was handed to the transport.
var ErrNilItem = errors.New("nil encrypted item")

// Transport accepts every send and reports every node reachable.
type Transport struct{}

var _ federation.Transport = (*Transport)(nil)

// NewTransport creates a new no-op federation transport.
func NewTransport() *Transport {
	return &Transport{}
}

// Send validates input and otherwise does nothing.
func (t *Transport) Send(_ context.Context, _ *federation.Node, item *memory.EncryptedItem) error {
	if item == nil {
		return ErrNilItem
	}

	return nil
}

// Ping always succeeds.
func (t *Transport) Ping(_ context.Context, _ *federation.Node) error {
	return nil
}

// Close is a no-op.
func (t *Transport) Close() error {
	return nil
}
