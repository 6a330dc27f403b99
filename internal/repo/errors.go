package repo

import "errors"

var (
	// ErrNotFound is returned when no row matches the query.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when an insert or update would violate
	// the unique constraint on users.email.
	ErrDuplicateEmail = errors.New("email already in use")
)
