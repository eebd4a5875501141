// Package secret resolves credential material referenced from configuration.
//
// It supports:
//   - Strict environment expansion (see ExpandEnvStrict)
//   - Pluggable secret providers (see Provider + Registry)
//   - Resolving secret references in configuration values (see Resolver)
//
// References use the prefix "secretref:":
//   - Full value:  secretref:env:TRACKER_TOKEN
//   - From a file: secretref:file:/run/secrets/tracker_jwt_key
//   - Inline use:  Bearer secretref:env:TRACKER_TOKEN
//
// The env and file providers are built in; NewDefaultResolver registers both.
package secret
