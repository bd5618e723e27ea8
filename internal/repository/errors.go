package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a store-level unique constraint rejected a write.
	ErrDuplicate = errors.New("repository: duplicate key")
)
