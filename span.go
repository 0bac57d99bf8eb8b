package goramp

import (
	"sync/atomic"
)

// span is a contiguous run of OS pages owned by the page cache. While free
// it sits on one of PC's free-by-page-count lists; while carved it belongs
// to a central cache size class and is tracked there by a spanTracker
// instead.
type span struct {
	addr     uintptr
	numPages int
	next     *span // intrusive link used only by PC's free-by-page-count lists
}

func (s *span) bytes() int {
	return s.numPages * PageSize
}

func (s *span) end() uintptr {
	return s.addr + uintptr(s.bytes())
}

// spanTracker is the central cache's bounded side-table entry recording
// how a span it carved is doing: how many blocks it yields and how many of
// those are currently free. Once written at registration, only freeCount
// ever changes again, and only under the owning size class's lock.
//
// live gates visibility: it is stored (release) only after spanAddr/
// numPages/blockCount are fully written, and checked (acquire) before any
// of those fields are read, so a tracker scanned from a different size
// class's goroutine (spanTrackerFor walks the whole shared table) never
// observes a half-initialized entry. It is cleared when the owning span
// is handed back to the page cache, so a later registration that reuses
// the same address range - PC may reissue coalesced pages to any size
// class - is the only entry that still matches.
type spanTracker struct {
	spanAddr   uintptr
	numPages   int
	blockCount int
	freeCount  int
	live       atomic.Bool
}

func (t *spanTracker) contains(p uintptr) bool {
	if !t.live.Load() {
		return false
	}
	return p >= t.spanAddr && p < t.spanAddr+uintptr(t.numPages*PageSize)
}
