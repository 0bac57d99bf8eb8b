package goramp

import (
	"testing"
	"unsafe"
)

func TestThreadCacheAllocateRefillsFromCentral(t *testing.T) {
	tc := &threadCache{}
	const i = 0

	p := tc.allocate(i)
	if p == nil {
		t.Fatal("allocate returned nil")
	}
	if tc.freeListSize[i] < 0 {
		t.Fatalf("freeListSize went negative: %d", tc.freeListSize[i])
	}
}

func TestThreadCacheAllocateThenDeallocateReusesBlock(t *testing.T) {
	tc := &threadCache{}
	const i = 0

	p := tc.allocate(i)
	tc.deallocate(i, p)

	q := tc.allocate(i)
	if q != p {
		t.Fatalf("expected hot reuse of just-freed block, got p=%p q=%p", p, q)
	}
}

// mintBlocks obtains n distinct, real blocks of size class i via the normal
// allocate path (refilling from the central cache one block at a time as
// needed), then resets tc's own bookkeeping to empty so the caller can
// exercise deallocate/spill behavior from a known starting point.
func mintBlocks(tc *threadCache, i, n int) []unsafe.Pointer {
	blocks := make([]unsafe.Pointer, n)
	for k := 0; k < n; k++ {
		blocks[k] = tc.allocate(i)
	}
	tc.freeList[i] = nil
	tc.freeListSize[i] = 0
	return blocks
}

func TestThreadCacheDeallocateGrowsLocalFreeList(t *testing.T) {
	tc := &threadCache{}
	const i = 0

	blocks := mintBlocks(tc, i, 10)
	for _, p := range blocks {
		tc.deallocate(i, p)
	}
	if tc.freeListSize[i] != 10 {
		t.Fatalf("freeListSize = %d, want 10", tc.freeListSize[i])
	}
	if chainLength(tc.freeList[i]) != 10 {
		t.Fatalf("chain length = %d, want 10", chainLength(tc.freeList[i]))
	}
}

func TestThreadCacheSpillsPastThreshold(t *testing.T) {
	tc := &threadCache{}
	const i = 0

	// 300 allocations of size 8, then 300 deallocates in order. The free
	// list crosses SpillThreshold on the
	// 257th deallocate, spills down to max(257/4, 1) = 64, then accepts
	// the remaining 43 deallocates without spilling again.
	const n = 300
	blocks := mintBlocks(tc, i, n)
	for _, p := range blocks {
		tc.deallocate(i, p)
	}

	spillAt := SpillThreshold + 1
	keptAfterSpill := spillAt / 4
	want := keptAfterSpill + (n - spillAt)
	if tc.freeListSize[i] != want {
		t.Fatalf("freeListSize after 300 deallocates = %d, want %d", tc.freeListSize[i], want)
	}
	if chainLength(tc.freeList[i]) != want {
		t.Fatalf("local chain length after 300 deallocates = %d, want %d", chainLength(tc.freeList[i]), want)
	}
}

func TestThreadCacheReturnToCentralCacheNoopOnShortList(t *testing.T) {
	tc := &threadCache{}
	const i = 0

	blocks := mintBlocks(tc, i, 1)
	tc.deallocate(i, blocks[0])
	if tc.freeListSize[i] != 1 {
		t.Fatalf("freeListSize = %d, want 1", tc.freeListSize[i])
	}

	tc.returnToCentralCache(i)
	if tc.freeListSize[i] != 1 {
		t.Fatalf("returnToCentralCache should be a no-op on a single-element list, got size %d", tc.freeListSize[i])
	}
}

func TestAcquireShardSpreadsAcrossShards(t *testing.T) {
	if shardCount < 2 {
		t.Skip("need at least two shards to observe spreading")
	}
	held := make([]*threadCache, 0, shardCount)
	for k := 0; k < shardCount; k++ {
		held = append(held, acquireShard())
	}
	for _, tc := range held {
		tc.unlock()
	}

	seen := make(map[*threadCache]bool)
	for _, tc := range held {
		seen[tc] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected acquireShard to spread across multiple shards, saw %d distinct", len(seen))
	}
}
