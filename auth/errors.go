package auth

import "errors"

// Sentinel errors for credentials and admin authentication.
var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrMissingSigningKey  = errors.New("auth: signing key is required")
	ErrUnknownCredential  = errors.New("auth: unknown credential type")
	ErrTokenSigning       = errors.New("auth: token signing failed")
)
