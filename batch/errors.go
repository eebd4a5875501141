package batch

import "errors"

var (
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("batch: coalescer closed")

	// ErrResultMismatch indicates a BatchFunc returned a different number
	// of results than targets.
	ErrResultMismatch = errors.New("batch: result count does not match targets")

	// ErrEmptyTarget is returned by Enqueue for an empty target.
	ErrEmptyTarget = errors.New("batch: target is empty")
)
