// Package goramp implements a thread-aware, multi-tier allocator for small
// fixed-size objects.
//
// Allocation requests up to MaxBytes are served from a three-level cache
// hierarchy modeled on tcmalloc (and on the shape Go's own runtime
// allocator uses internally: mcache -> mcentral -> mheap):
//
//	thread cache (tcache.go)   - per-shard free lists, the fast path
//	central cache (central.go) - lock-free-ish per-size-class free lists,
//	                             batches blocks to/from thread caches
//	page cache (pagecache.go)  - owns spans of OS pages, splits/coalesces,
//	                             talks to the operating system
//
// Requests above MaxBytes bypass the tiered path entirely and are served
// directly by the Go runtime allocator (plain make([]byte, n)).
//
// Callers that just want malloc/free semantics use Allocate/Deallocate.
// Callers with a concrete type use the generic New/Delete wrappers.
package goramp
