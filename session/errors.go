package session

import "errors"

var (
	ErrEditWhileRunning = errors.New("cannot edit a student while the randomizer is running")
	ErrStaleLoad        = errors.New("roster load superseded by a newer request")
	ErrNoEditOpen       = errors.New("no student is open for editing")
	ErrClosed           = errors.New("session is closed")
)
