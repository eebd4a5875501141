// Package pipeline dispatches requests through the cache, in-flight
// deduplication, invalidation and batching layers to a transport.
//
// For a mutation the pipeline invalidates the target's resource families,
// sends the request, and invalidates again once the upstream answered, so a
// read that raced the mutation cannot leave stale data behind. Mutations
// are never cached or deduplicated.
//
// For a read it classifies the target. Uncacheable reads go straight to the
// transport. Cacheable reads are answered from the cache when a live entry
// exists; otherwise the first caller for the key leads one upstream call and
// every concurrent caller for the same key shares its outcome. A successful
// leader stores the payload with the policy TTL before the outcome is
// delivered; a failure is delivered to every waiter and nothing is cached.
//
// ReadBatched is an alternate entry point for reads arriving in bursts: the
// read joins a debounced group, and the group is flushed as individual
// cached reads once the debounce window closes.
//
// Errors from the transport are returned unchanged to every caller.
package pipeline
