// Package observe provides logging, metrics and tracing for the request
// pipeline.
//
// Logging is structured and backed by zerolog. Metrics and spans go through
// OpenTelemetry; exporters are selected by name in the exporters subpackage.
// Nothing in this package performs requests: consumers wrap their transport
// with Middleware and hand Metrics to the cache, deduplicator and coalescer.
package observe
