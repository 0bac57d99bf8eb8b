package goramp

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

// centralClass is one size class's slice of the central cache: a
// lock-free-published free-list head plus the spin flag that serializes
// every mutation of it, and the delayed-return bookkeeping for that class.
// The flag is acquired with a test-and-set CAS and released with a clear
// store, never a blocking mutex.
type centralClass struct {
	head unsafe.Pointer // *freeLink, published with atomic store-release
	busy atomic.Bool    // spin flag

	delayCount     atomic.Int64
	lastReturnedAt atomic.Int64 // unix nanoseconds
}

func (c *centralClass) lock() {
	for !c.busy.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (c *centralClass) unlock() {
	c.busy.Store(false)
}

func (c *centralClass) loadHead() unsafe.Pointer {
	return atomic.LoadPointer(&c.head)
}

func (c *centralClass) storeHead(p unsafe.Pointer) {
	atomic.StorePointer(&c.head, p)
}

// centralCache is the process-wide, per-size-class batching layer between
// thread caches and the page cache.
type centralCache struct {
	classes [FreeListSize]centralClass

	// trackers is the bounded span registry shared across all size
	// classes: one fixed array, a monotonically increasing count, slots
	// never reclaimed.
	trackers  [SpanTrackerCap]spanTracker
	spanCount atomic.Int64
}

var (
	centralCacheOnce sync.Once
	centralCache_    *centralCache
)

func theCentralCache() *centralCache {
	centralCacheOnce.Do(func() {
		cc := &centralCache{}
		now := time.Now().UnixNano()
		for i := range cc.classes {
			cc.classes[i].lastReturnedAt.Store(now)
		}
		centralCache_ = cc
	})
	return centralCache_
}

// fetchRange returns exactly one block of size class i, detached and
// null-terminated, or nil on OOM. Handing back a single block per call -
// rather than draining the whole class free list to the first caller -
// is what lets the central cache actually "batch between threads": many
// concurrent thread-cache misses on the same class each get served in
// turn instead of one winner taking an entire carved span.
func (cc *centralCache) fetchRange(i int) unsafe.Pointer {
	class := &cc.classes[i]
	class.lock()
	defer class.unlock()

	if head := class.loadHead(); head != nil {
		next := nextOf(head)
		setNext(head, nil)
		class.storeHead(next)
		if t := cc.spanTrackerFor(uintptr(head)); t != nil {
			t.freeCount--
		}
		return head
	}

	size := blockSize(i)
	numPages := SpanPages
	if size > SpanPages*PageSize {
		numPages = (size + PageSize - 1) / PageSize
	}

	addr := thePageCache().allocateSpan(numPages)
	if addr == 0 {
		return nil
	}

	blockCount := (numPages * PageSize) / size
	start := unsafe.Pointer(addr)
	for k := 1; k < blockCount; k++ {
		cur := unsafe.Add(start, (k-1)*size)
		next := unsafe.Add(start, k*size)
		setNext(cur, next)
	}
	setNext(unsafe.Add(start, (blockCount-1)*size), nil)

	cc.registerSpan(i, addr, numPages, blockCount)

	first := start
	second := nextOf(first)
	setNext(first, nil)
	class.storeHead(second)
	return first
}

// returnRange accepts a null-terminated list of blocks of size class i
// (whose combined byte length is totalBytes) and splices it back onto the
// central free list, crediting each block to its owning span's tracker
// before running the delayed-return heuristic.
func (cc *centralCache) returnRange(head unsafe.Pointer, totalBytes int, i int) {
	if head == nil {
		return
	}
	class := &cc.classes[i]
	size := blockSize(i)
	blockCount := totalBytes / size

	class.lock()
	defer class.unlock()

	tail := head
	if t := cc.spanTrackerFor(uintptr(tail)); t != nil {
		t.freeCount++
	}
	for count := 1; nextOf(tail) != nil && count < blockCount; count++ {
		tail = nextOf(tail)
		if t := cc.spanTrackerFor(uintptr(tail)); t != nil {
			t.freeCount++
		}
	}
	cur := class.loadHead()
	setNext(tail, cur)
	class.storeHead(head)

	n := class.delayCount.Add(1)
	now := time.Now()
	if cc.shouldPerformDelayedReturn(class, n, now) {
		cc.performDelayedReturn(i)
	}
}

func (cc *centralCache) shouldPerformDelayedReturn(class *centralClass, count int64, now time.Time) bool {
	if count >= MaxDelayCount {
		return true
	}
	last := time.Unix(0, class.lastReturnedAt.Load())
	return now.Sub(last) >= DelayInterval
}

// performDelayedReturn looks for any span of size class i whose blocks have
// all been returned (tracker.freeCount == tracker.blockCount, maintained
// incrementally by returnRange and fetchRange) and, for each one found,
// strips its blocks out of the free list and hands the span back to the
// page cache. class.busy must already be held by the caller.
func (cc *centralCache) performDelayedReturn(i int) {
	class := &cc.classes[i]
	class.delayCount.Store(0)
	class.lastReturnedAt.Store(time.Now().UnixNano())

	n := int(cc.spanCount.Load())
	for k := 0; k < n; k++ {
		t := &cc.trackers[k]
		if !t.live.Load() || t.freeCount != t.blockCount {
			continue
		}

		spanAddr, numPages := t.spanAddr, t.numPages
		var newHead, prev unsafe.Pointer
		removed := 0
		for p := class.loadHead(); p != nil; {
			next := nextOf(p)
			addr := uintptr(p)
			if addr >= spanAddr && addr < spanAddr+uintptr(numPages*PageSize) {
				removed++
				if prev != nil {
					setNext(prev, next)
				}
			} else {
				if prev == nil {
					newHead = p
				}
				prev = p
			}
			p = next
		}
		if removed == 0 {
			// None of its blocks are on class i's list: the span was carved
			// for another size class and is left to that class's own pass.
			continue
		}
		class.storeHead(newHead)
		t.live.Store(false)
		thePageCache().deallocateSpan(spanAddr, numPages)
	}
}

// registerSpan allocates a new tracker slot for a span CC has just carved.
func (cc *centralCache) registerSpan(i int, addr uintptr, numPages, blockCount int) {
	idx := int(cc.spanCount.Add(1) - 1)
	if idx >= SpanTrackerCap {
		panic(&TrackerExhaustedError{SizeClass: i})
	}
	t := &cc.trackers[idx]
	t.spanAddr = addr
	t.numPages = numPages
	t.blockCount = blockCount
	t.freeCount = blockCount - 1 // one block just went to the caller; the rest sit on the central free list
	t.live.Store(true)           // publish: release-orders the writes above
}

// spanTrackerFor finds the tracker owning block address p by linear scan
// over the registered span count. O(span_count); acceptable at the
// delayed-return cadence for realistic span counts.
func (cc *centralCache) spanTrackerFor(p uintptr) *spanTracker {
	n := int(cc.spanCount.Load())
	for k := 0; k < n; k++ {
		if cc.trackers[k].contains(p) {
			return &cc.trackers[k]
		}
	}
	return nil
}
