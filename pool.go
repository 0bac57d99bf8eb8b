package goramp

import "unsafe"

// Allocate returns a block of at least n bytes, 8-byte aligned, or nil on
// OOM. A request of 0 behaves as a request of Alignment. Requests above
// MaxBytes bypass the tiered path and are served directly
// by the Go runtime allocator - there is no system malloc to forward to
// from ordinary Go code, so a plain make([]byte, n) stands in for it; the
// returned unsafe.Pointer keeps that backing array reachable for as long
// as the caller holds it.
func Allocate(n int) unsafe.Pointer {
	if n == 0 {
		n = Alignment
	}
	if n > MaxBytes {
		b := make([]byte, n)
		return unsafe.Pointer(unsafe.SliceData(b))
	}

	i := sizeClassIndex(n)
	tc := acquireShard()
	p := tc.allocate(i)
	tc.unlock()
	return p
}

// Deallocate releases a block previously returned by Allocate. n must be
// the same size originally requested - the allocator does not record
// per-block sizes. Oversized blocks (n > MaxBytes) are simply dropped;
// the Go garbage collector reclaims them, the idiomatic substitute for
// an explicit system free() call.
func Deallocate(p unsafe.Pointer, n int) {
	if p == nil {
		return
	}
	if n == 0 {
		n = Alignment
	}
	if n > MaxBytes {
		return
	}

	i := sizeClassIndex(n)
	if debugChecksEnabled() && !plausibleBlock(p, i) {
		panic(&InvalidFreeError{Ptr: uintptr(p), Size: n})
	}

	tc := acquireShard()
	tc.deallocate(i, p)
	tc.unlock()
}

// plausibleBlock is the DebugChecks-only InvalidFree detector: a genuine
// block must fall inside some span the central cache has registered,
// since every block it ever hands out comes from a carved span. The
// check does not use i: a pointer inside a live span of any size class
// passes, so a free at the wrong size is not detected. It cannot catch
// every misuse (a pointer into the middle of a live block looks
// plausible too), only the clearly-foreign-pointer case.
func plausibleBlock(p unsafe.Pointer, i int) bool {
	cc := theCentralCache()
	addr := uintptr(p)
	n := int(cc.spanCount.Load())
	for k := 0; k < n; k++ {
		if cc.trackers[k].contains(addr) {
			return true
		}
	}
	return false
}

// New allocates space for a T and returns a pointer to a zero-valued T in
// it. Go has no placement construction, so there is nothing for
// constructor arguments to initialize at the allocation site; callers
// that need non-zero initial state assign it themselves after New
// returns, the same way they would after any other zero-value
// allocation in Go. The storage is cleared before it is returned, since
// a reused block still holds its free-list link and earlier contents.
func New[T any]() *T {
	size := int(unsafe.Sizeof(*new(T)))
	p := Allocate(size)
	if p == nil {
		return nil
	}
	clear(unsafe.Slice((*byte)(p), size))
	return (*T)(p)
}

// Delete releases the memory backing p, the counterpart to New[T]. Go has
// no destructors: callers whose T holds resources needing cleanup (open
// files, registered callbacks, ...) must release them before calling
// Delete, exactly as they would before letting any other *T go out of
// scope.
func Delete[T any](p *T) {
	if p == nil {
		return
	}
	var zero T
	Deallocate(unsafe.Pointer(p), int(unsafe.Sizeof(zero)))
}
