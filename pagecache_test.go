package goramp

import "testing"

func newTestPageCache() *pageCache {
	return &pageCache{
		freeSpans: make(map[int]*span),
		spanMap:   make(map[uintptr]*span),
	}
}

func TestPageCacheAllocateFromOS(t *testing.T) {
	pc := newTestPageCache()
	addr := pc.allocateSpan(4)
	if addr == 0 {
		t.Fatal("allocateSpan returned 0")
	}
	if addr%PageSize != 0 {
		t.Fatalf("span address %#x not page-aligned", addr)
	}
	s := pc.spanMap[addr]
	if s == nil || s.numPages != 4 {
		t.Fatalf("spanMap entry missing or wrong length: %+v", s)
	}
}

func TestPageCacheAllocateLeavesArenaRemainderFree(t *testing.T) {
	pc := newTestPageCache()
	addr := pc.allocateSpan(4)
	if addr == 0 {
		t.Fatal("allocateSpan returned 0")
	}

	wantRestPages := ArenaPages - 4
	rest, ok := pc.freeSpans[wantRestPages]
	if !ok || rest.addr != addr+4*PageSize {
		t.Fatalf("expected a %d-page remainder span at %#x, got %+v", wantRestPages, addr+4*PageSize, rest)
	}
}

func TestPageCacheSplit(t *testing.T) {
	pc := newTestPageCache()
	// Request exactly one arena's worth so there is no leftover remainder
	// to account for, then free it and carve a small span back out of it.
	big := pc.allocateSpan(ArenaPages)
	pc.deallocateSpan(big, ArenaPages)

	small := pc.allocateSpan(3)
	if small != big {
		t.Fatalf("expected split to reuse base address %#x, got %#x", big, small)
	}
	wantRestPages := ArenaPages - 3
	rest, ok := pc.freeSpans[wantRestPages]
	if !ok || rest.addr != big+3*PageSize {
		t.Fatalf("expected a %d-page remainder span at %#x, got %+v", wantRestPages, big+3*PageSize, rest)
	}
}

func TestPageCacheCoalescingForward(t *testing.T) {
	pc := newTestPageCache()
	a := pc.allocateSpan(4)
	b := pc.allocateSpan(4)
	if b != a+4*PageSize {
		// b should be carved from the arena remainder allocateSpan(a) left
		// behind, so it lands immediately after a.
		t.Fatalf("expected b immediately after a; a=%#x b=%#x", a, b)
	}

	// Coalescing only ever looks forward (right), so freeing b first lets
	// it absorb the (still free) rest of the arena to its right, and
	// freeing a second lets it absorb the now-free b in turn - fully
	// defragmenting back into one whole-arena span.
	pc.deallocateSpan(b, 4)
	pc.deallocateSpan(a, 4)

	merged, ok := pc.freeSpans[ArenaPages]
	if !ok || merged.addr != a {
		t.Fatalf("expected a merged %d-page span at %#x, got %+v", ArenaPages, a, merged)
	}
	if len(pc.spanMap) != 1 {
		t.Fatalf("expected exactly one surviving span_map entry, got %d", len(pc.spanMap))
	}
}

func TestPageCacheNoBackwardCoalescing(t *testing.T) {
	pc := newTestPageCache()
	a := pc.allocateSpan(4)
	b := pc.allocateSpan(4)

	// Freeing in allocation order: a has nothing free to its right yet
	// (b is still carved out), so it cannot merge with b no matter how
	// adjacent they are. This is the intentionally one-directional
	// coalescing policy, not a missed optimization.
	pc.deallocateSpan(a, 4)
	pc.deallocateSpan(b, 4)

	if _, ok := pc.freeSpans[4]; !ok {
		t.Fatal("expected a's standalone 4-page span to remain free and unmerged")
	}
	if _, ok := pc.freeSpans[ArenaPages]; ok {
		t.Fatal("a and b must not have coalesced when freed in allocation order")
	}
}

func TestPageCacheDeallocateUnknownPointerIgnored(t *testing.T) {
	pc := newTestPageCache()
	pc.deallocateSpan(0xdeadbeef, 4) // must not panic
	if len(pc.spanMap) != 0 {
		t.Fatalf("expected no spans registered, got %d", len(pc.spanMap))
	}
}

func TestPageCacheReuseAfterCoalesce(t *testing.T) {
	pc := newTestPageCache()
	a := pc.allocateSpan(4)
	b := pc.allocateSpan(4)
	pc.deallocateSpan(b, 4)
	pc.deallocateSpan(a, 4)

	reused := pc.allocateSpan(ArenaPages)
	if reused != a {
		t.Fatalf("expected the fully coalesced arena to be reused at %#x, got %#x", a, reused)
	}
}

func TestPageCacheGrowsNewArenaWhenFreeListExhausted(t *testing.T) {
	pc := newTestPageCache()
	first := pc.allocateSpan(ArenaPages) // consumes the whole first arena
	second := pc.allocateSpan(4)         // free lists are empty, must map a new arena

	if second == first {
		t.Fatal("expected a fresh arena, not a reuse of the fully-consumed first one")
	}
}
