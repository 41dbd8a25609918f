package db

import "errors"

// Roster store error types. Callers match them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateSection = errors.New("section already exists")
	ErrValidation       = errors.New("validation failed")
	ErrStoreUnavailable = errors.New("roster store unavailable")
)
