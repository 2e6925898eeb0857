// Package persist stores the stream of encoded document updates so that a
// document can be rebuilt by replaying them in order.
package persist

import (
	"context"
	"errors"
)

// ErrEmptyDocID is returned when an update is appended without a document.
var ErrEmptyDocID = errors.New("persist: empty document id")

// UpdateLog is an append-only, per-document log of encoded updates.
type UpdateLog interface {
	// Append stores update at the end of docID's log.
	Append(ctx context.Context, docID, peerID string, update []byte) error

	// Load returns docID's updates in append order. An unknown document has
	// an empty log.
	Load(ctx context.Context, docID string) ([][]byte, error)

	Close() error
}
