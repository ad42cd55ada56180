package storage

import "errors"

var (
	// ErrInvalidIdentifier indicates a supplied id cannot be converted to the
	// store's native document key.
	ErrInvalidIdentifier = errors.New("storage: invalid document identifier")
	// ErrMissingCollectionName indicates a store operation was invoked without
	// a target collection name.
	ErrMissingCollectionName = errors.New("storage: collection name is required")
	// ErrEmptyDocument indicates a write was attempted with no fields.
	ErrEmptyDocument = errors.New("storage: document is required")
)
