package database

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEntry is returned when an insert violates a unique constraint.
	ErrDuplicateEntry = errors.New("duplicate entry")
	// ErrConflict is returned when a conditional update matched no row because
	// the row no longer satisfies the condition.
	ErrConflict = errors.New("conditional update conflict")
)
