package database

import "errors"

var (
	// ErrDuplicateName is returned when enrolling or renaming to a name
	// that is already taken. Expected, reported as a normal negative result.
	ErrDuplicateName = errors.New("identity name already exists")

	// ErrNotFound is returned when the named identity does not exist.
	ErrNotFound = errors.New("identity not found")
)
