package pipeline

import "errors"

// Sentinel errors for pipeline operations.
var (
	ErrNilTransport = errors.New("pipeline: transport is required")
	ErrNotMutation  = errors.New("pipeline: method is not a mutation")
	ErrClosed       = errors.New("pipeline: closed")
)
