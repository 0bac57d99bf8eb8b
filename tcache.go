package goramp

import (
	"runtime"
	"sync"
	"unsafe"
)

// threadCache is the fast-path free-list cache. Go gives ordinary code no
// stable per-OS-thread handle to pin a cache to (goroutines migrate
// across threads), so this shards a small, fixed pool of these across
// GOMAXPROCS and briefly locks whichever shard a call manages to acquire
// uncontended. Everything below the acquisition
// (allocate/deallocate/refill/spill) is the single-owner algorithm a true
// per-thread cache would run, unmodified.
type threadCache struct {
	mu sync.Mutex

	freeList     [FreeListSize]unsafe.Pointer
	freeListSize [FreeListSize]int
}

var (
	shards     []*threadCache
	shardCount int
)

func init() {
	n := runtime.GOMAXPROCS(0)
	if n < 4 {
		n = 4
	}
	shardCount = nextPowerOfTwo(n)
	shards = make([]*threadCache, shardCount)
	for i := range shards {
		shards[i] = &threadCache{}
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// shardHint returns a value that stays stable across calls made in quick
// succession by the same goroutine: the address of a stack-local
// variable does not move between two nearby calls unless the stack grows
// in between. Go gives ordinary code no portable goroutine-id API, so
// this is the closest userland approximation to the per-thread affinity
// a real pthread-keyed thread cache would get for free - it is what lets
// a goroutine's Allocate and its matching Deallocate land on the same
// shard and actually hit the thread-cache fast path, instead of an
// ever-advancing counter handing every call a fresh shard.
//
// acquireShard keeps only the low bits of the product, and those depend
// only on the low bits of the address. Goroutine stacks are aligned, so
// the same call path gives the same low bits in every goroutine: the
// hint does not separate goroutines, and concurrent callers are spread
// across shards by acquireShard's TryLock scan, not by the hint.
func shardHint() uintptr {
	var x byte
	h := uintptr(unsafe.Pointer(&x))
	return h * 2654435761 // Knuth multiplicative hash
}

// acquireShard finds an uncontended shard and returns it locked, starting
// the scan from the calling goroutine's shardHint so repeated calls from
// the same goroutine tend to land on the same shard rather than
// round-robining across all of them. Under GOMAXPROCS-bounded
// concurrency this succeeds on (or very near) the first try. In the rare
// case every shard is momentarily busy, this yields to the scheduler and
// rescans rather than blocking on a mutex - a thread cache must never
// block, so contention here is resolved the same spin-and-yield way the
// central cache's own per-size-class locks are.
func acquireShard() *threadCache {
	start := int(shardHint()) & (shardCount - 1)
	for {
		for k := 0; k < shardCount; k++ {
			tc := shards[(start+k)&(shardCount-1)]
			if tc.mu.TryLock() {
				return tc
			}
		}
		runtime.Gosched()
	}
}

func (tc *threadCache) unlock() {
	tc.mu.Unlock()
}

// allocate returns a block of at least size bytes from size class i. The
// caller holds tc locked. Mirrors ThreadCache::allocate exactly (minus
// the size==0 / size>MaxBytes forwarding, handled by the caller in pool.go).
func (tc *threadCache) allocate(i int) unsafe.Pointer {
	if p := tc.freeList[i]; p != nil {
		tc.freeList[i] = nextOf(p)
		tc.freeListSize[i]--
		return p
	}
	return tc.fetchFromCentralCache(i)
}

// fetchFromCentralCache refills free list i from the central cache and
// returns the block it hands back. The central cache returns exactly one
// block per fetchRange call (so other threads miss-ing on this size
// class concurrently can each get one too instead of one caller draining
// the whole class), so there is nothing left over to keep as a local
// list; the next allocate on an empty list goes back to the central
// cache again. chainLength is still used defensively in case a future
// fetchRange implementation hands back more than one block.
func (tc *threadCache) fetchFromCentralCache(i int) unsafe.Pointer {
	start := theCentralCache().fetchRange(i)
	if start == nil {
		return nil
	}
	result := start
	rest := nextOf(start)
	setNext(result, nil)
	tc.freeList[i] = rest
	tc.freeListSize[i] = chainLength(rest)
	return result
}

// deallocate pushes p (a block of size class i) onto the local free list,
// then spills to the central cache if the list has grown past
// SpillThreshold. The caller holds tc locked.
func (tc *threadCache) deallocate(i int, p unsafe.Pointer) {
	setNext(p, tc.freeList[i])
	tc.freeList[i] = p
	tc.freeListSize[i]++

	if tc.freeListSize[i] > SpillThreshold {
		tc.returnToCentralCache(i)
	}
}

// returnToCentralCache implements the spill algorithm: keep a
// quarter of the list (at least one block), hand the rest to the central
// cache in one batch.
func (tc *threadCache) returnToCentralCache(i int) {
	batchNum := tc.freeListSize[i]
	if batchNum <= 1 {
		return
	}
	keepNum := batchNum / 4
	if keepNum < 1 {
		keepNum = 1
	}
	returnNum := batchNum - keepNum

	start := tc.freeList[i]
	splitNode := start
	actualKept := 1
	for k := 0; k < keepNum-1; k++ {
		next := nextOf(splitNode)
		if next == nil {
			// Chain was shorter than our own count said; don't spill.
			return
		}
		splitNode = next
		actualKept++
	}
	if actualKept != keepNum {
		return
	}

	suffix := nextOf(splitNode)
	if suffix == nil {
		return
	}
	setNext(splitNode, nil)

	tc.freeList[i] = start
	tc.freeListSize[i] = keepNum

	size := blockSize(i)
	theCentralCache().returnRange(suffix, returnNum*size, i)
}
