package store

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("already exists")
	ErrAlreadyResolved = errors.New("conflict already resolved")
	// ErrPhaseChanged is returned by UpdatePhase when the project is no
	// longer in the expected source phase.
	ErrPhaseChanged = errors.New("project phase changed concurrently")
)
