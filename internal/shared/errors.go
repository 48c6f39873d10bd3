package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrLockHeld indicates another run holds the critical section.
	ErrLockHeld = errors.New("run lock held")
)
