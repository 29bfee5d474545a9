// Package sentinel holds the storage-level facts stores report. Services
// translate them into domain errors; request validation uses
// pkg/domain-errors directly.
package sentinel

import "errors"

var (
	// ErrNotFound means the entity does not exist in the store.
	ErrNotFound = errors.New("not found")
	// ErrConflict means an entity with the same identity already exists.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState means the stored entity cannot take the requested change.
	ErrInvalidState = errors.New("invalid state")
)
