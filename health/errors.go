package health

import "errors"

var (
	// ErrCheckFailed marks a result whose check found a hard failure.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout marks a result whose check did not return in time.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound is returned by Aggregator.Check for unknown names.
	ErrCheckerNotFound = errors.New("health: checker not found")
)
