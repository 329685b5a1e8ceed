package store

import "errors"

var (
	// ErrNotFound indicates the requested trace or span does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a record with the same ID was already written.
	ErrAlreadyExists = errors.New("already exists")
)
