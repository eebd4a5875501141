// Package batch coalesces bursts of related reads into one aggregate call per
// group.
//
// Targets are grouped by a group key (by default their parent collection).
// The first member of a group starts a debounce timer owned by the group;
// later members do not restart it. When the timer fires the group is
// detached, its targets are handed to a BatchFunc in enqueue order, and each
// member receives the result at its own index. If the aggregate call fails,
// every member receives the same error. Members that arrive after a group
// has been detached start a new group under the same key.
//
// FlushNow and FlushAll run groups immediately, bypassing the debounce
// window. Close flushes everything and rejects further enqueues.
package batch
