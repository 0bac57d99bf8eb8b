package goramp

import "sync/atomic"

// Options configures implementation-defined behavior left open by the
// allocator's contract. It never changes the fixed size-class geometry
// (Alignment, MaxBytes, PageSize, ...): those stay compile-time constants.
type Options struct {
	// DebugChecks enables InvalidFree detection, optional in release
	// builds and off by default.
	DebugChecks bool
}

var debugChecks atomic.Bool

// Configure applies opts process-wide. It is intended to be called once,
// early (e.g. from an init function or main), not toggled per request.
func Configure(opts Options) {
	debugChecks.Store(opts.DebugChecks)
}

func debugChecksEnabled() bool {
	return debugChecks.Load()
}
