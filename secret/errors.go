package secret

import "errors"

var (
	// ErrProviderNotRegistered indicates a secretref names an unknown provider.
	ErrProviderNotRegistered = errors.New("secret: provider not registered")

	// ErrEmptySecret indicates a strict resolver got an empty value.
	ErrEmptySecret = errors.New("secret: provider returned empty value")

	// ErrMissingEnv indicates ${VAR} references an unset variable.
	ErrMissingEnv = errors.New("secret: missing required environment variables")

	// ErrSecretNotFound indicates a provider has no value for a ref.
	ErrSecretNotFound = errors.New("secret: not found")

	// ErrInvalidRegistration indicates an empty name or nil factory.
	ErrInvalidRegistration = errors.New("secret: invalid provider registration")
)
