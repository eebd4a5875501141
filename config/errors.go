package config

import "errors"

var (
	// ErrInvalidConfig indicates a value that failed validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrMissingBaseURL indicates transport.base_url is empty.
	ErrMissingBaseURL = errors.New("config: transport.base_url is required")

	// ErrInvalidEnv indicates a REQPIPE_* variable that could not be parsed.
	ErrInvalidEnv = errors.New("config: invalid environment override")
)
