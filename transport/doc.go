// Package transport sends requests to the upstream API.
//
// Transport is the single capability the request pipeline consumes: one
// Send per logical request, with no caching or retry of its own. The HTTP
// implementation carries credentials supplied by an auth.CredentialProvider
// and reports non-2xx answers as *StatusError. Optional decorators add
// resilience (WithResilience) and telemetry (WithObservability).
//
//	var tr transport.Transport
//	tr, err := transport.NewHTTP(transport.HTTPConfig{
//	    BaseURL:     "https://tracker.example.com",
//	    Credentials: creds,
//	})
//	tr = transport.WithResilience(tr, exec)
//	tr = transport.WithObservability(tr, mw)
package transport
