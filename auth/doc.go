// Package auth supplies credentials for upstream requests and guards the
// admin surface.
//
// Credentials are injected into the transport as a CredentialProvider
// instead of being read from process-wide state. Providers exist for no
// credentials, a static bearer token, a static API key header and
// self-signed short-lived JWTs.
package auth
