package goramp

import "fmt"

// TrackerExhaustedError is panicked when the central cache's span-tracker
// table (capacity SpanTrackerCap) is full and a new span has just been
// carved. This is treated as a fatal configuration error: under
// realistic workloads the table should never fill, so there is no
// recovery path, only a clear signal of which size class triggered it.
type TrackerExhaustedError struct {
	SizeClass int
}

func (e *TrackerExhaustedError) Error() string {
	return fmt.Sprintf("goramp: central cache span-tracker table exhausted for size class %d (capacity %d)", e.SizeClass, SpanTrackerCap)
}

// InvalidFreeError is panicked (only when Options.DebugChecks is set) when
// Deallocate is called with a pointer that lies in no span the central
// cache has registered. The size passed is not checked against the span.
// Behavior is otherwise undefined in release builds; this module chooses
// to check for it only under DebugChecks rather than pay the cost on
// every release-build free.
type InvalidFreeError struct {
	Ptr  uintptr
	Size int
}

func (e *InvalidFreeError) Error() string {
	return fmt.Sprintf("goramp: invalid free of %#x at size %d", e.Ptr, e.Size)
}
