// Package cache provides the response cache used by the request pipeline.
//
// It contains the size-bounded Store with lazy per-entry TTL expiry, the
// deterministic method+target Keyer, the TTL policy table and the
// Classifier that decides which requests are eligible for caching.
package cache
