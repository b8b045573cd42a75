package coordinator

import "errors"

var (
	// ErrInvariantViolation means the resource accounting is broken. The run is aborted.
	ErrInvariantViolation = errors.New("coordinator: invariant violation")
	ErrAlreadyPublishing  = errors.New("coordinator: already publishing")
	// ErrCoordinatorUsed is returned when a finished coordinator is run again.
	ErrCoordinatorUsed = errors.New("coordinator: already used")
)
