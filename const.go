package goramp

import "time"

// Configuration constants. None of them are meant to be changed at
// runtime, only at build time; size-class geometry lives here as one
// group of untyped constants rather than scattered magic numbers.
const (
	// Alignment is the block-size quantum; every size class's block size
	// is a multiple of this.
	Alignment = 8

	// MaxBytes is the largest request size served by the tiered path.
	// Anything bigger forwards straight to the Go runtime allocator.
	MaxBytes = 512

	// FreeListSize is the number of managed size classes.
	FreeListSize = MaxBytes / Alignment

	// PageSize is the page-cache quantum. It intentionally does not need
	// to equal the OS's actual page size; it only needs to be a multiple
	// of it, since mmap rounds up regardless.
	PageSize = 4096

	// SpanPages is the default span length, in pages, used for requests
	// that fit in one span of this size.
	SpanPages = 8

	// SpillThreshold is the thread-cache free-list length that triggers
	// a spill back to the central cache.
	SpillThreshold = 256

	// MaxDelayCount is the central-cache return count that forces a
	// delayed-return pass regardless of elapsed time.
	MaxDelayCount = 48

	// SpanTrackerCap is the central cache's span-tracker table capacity.
	// Exceeding it is a fatal configuration error (see TrackerExhaustedError).
	SpanTrackerCap = 1024

	// ArenaPages is the granularity the page cache maps from the operating
	// system in. A single mmap call of this size is sub-allocated for many
	// span requests afterward, so spans carved from the same arena sit at
	// predictable, adjacent addresses and can coalesce back together on
	// return - independent mmap calls are not guaranteed by the kernel to
	// land adjacently, so doling out of one larger mapping is what makes
	// forward coalescing actually fire in practice.
	ArenaPages = 1024
)

// DelayInterval is the wall-clock interval that forces a delayed-return
// pass regardless of count.
const DelayInterval = 1000 * time.Millisecond
