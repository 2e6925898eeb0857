package crdt

import "errors"

var (
	// ErrDestroyed is returned when an update is applied to a destroyed Doc.
	ErrDestroyed = errors.New("crdt: document destroyed")

	// ErrMalformedUpdate indicates that an encoded update could not be decoded
	// or carries ops without a map, key or author.
	ErrMalformedUpdate = errors.New("crdt: malformed update")
)
