package goramp

import (
	"sort"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pageCache owns every byte of memory this package ever obtains from the
// operating system. It manages spans: splitting larger ones to satisfy
// smaller requests, coalescing physically adjacent ones on return, and
// mapping fresh pages in when nothing free fits - in chunks of ArenaPages,
// not one mmap per request, so that spans carved from the same chunk sit at
// predictable addresses and can coalesce back on return; independent mmap
// calls have no such guarantee from the kernel. A single mutex guards all
// of its state; the critical section only does pointer surgery and map
// bookkeeping. systemAlloc is only ever called while free_spans has
// nothing suitable, so in practice the mutex is held across the mmap
// call too, which may itself still block in the kernel - acceptable for
// a rare, amortized-away cache miss.
type pageCache struct {
	mu sync.Mutex

	// freeSpans maps page count -> head of an intrusive free-span list of
	// that length. keys is freeSpans' key set kept sorted so "smallest
	// span with at least n pages" is a binary search away, standing in
	// for an ordered map Go's standard library doesn't provide.
	freeSpans map[int]*span
	keys      []int

	// spanMap maps a span's starting address to its span record, for
	// every span this cache currently knows about (whether on a free
	// list or carved out to a central cache).
	spanMap map[uintptr]*span
}

var (
	pageCacheOnce sync.Once
	pageCache_    *pageCache
)

// thePageCache returns the process-wide page cache, constructing it lazily
// on first use under sync.Once so concurrent first access is safe without
// an explicit init-ordering step.
func thePageCache() *pageCache {
	pageCacheOnce.Do(func() {
		pageCache_ = &pageCache{
			freeSpans: make(map[int]*span),
			spanMap:   make(map[uintptr]*span),
		}
	})
	return pageCache_
}

// allocateSpan returns the starting address of a run of exactly n
// contiguous pages, or 0 on OOM. When the free lists can't satisfy the
// request, it maps a fresh ArenaPages-sized chunk (or n pages, if the
// request is itself larger than an arena) and keeps whatever that chunk
// doesn't use as an immediately available free span.
func (pc *pageCache) allocateSpan(n int) uintptr {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if i := pc.firstKeyAtLeast(n); i >= 0 {
		k := pc.keys[i]
		s := pc.freeSpans[k]
		pc.popFreeHead(k, s)

		if s.numPages > n {
			rest := &span{
				addr:     s.addr + uintptr(n*PageSize),
				numPages: s.numPages - n,
			}
			pc.pushFree(rest)
			pc.spanMap[rest.addr] = rest
			s.numPages = n
		}
		s.next = nil
		pc.spanMap[s.addr] = s
		return s.addr
	}

	arenaPages := n
	if arenaPages < ArenaPages {
		arenaPages = ArenaPages
	}
	addr, ok := pc.systemAlloc(arenaPages)
	if !ok {
		return 0
	}
	s := &span{addr: addr, numPages: n}
	pc.spanMap[addr] = s

	if extra := arenaPages - n; extra > 0 {
		rest := &span{addr: addr + uintptr(n*PageSize), numPages: extra}
		pc.spanMap[rest.addr] = rest
		pc.pushFree(rest)
	}
	return addr
}

// deallocateSpan returns a run of n pages previously obtained from
// allocateSpan. It coalesces forward with a right-adjacent free span when
// one exists; this is intentionally one-directional (see pageCache's
// comment on why spans are carved from arena-sized chunks to make that
// worthwhile).
func (pc *pageCache) deallocateSpan(ptr uintptr, n int) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	s, ok := pc.spanMap[ptr]
	if !ok {
		// Not memory this cache handed out; silently ignore.
		return
	}

	nextAddr := s.end()
	if next, ok := pc.spanMap[nextAddr]; ok && pc.unlinkIfFree(next) {
		s.numPages += next.numPages
		delete(pc.spanMap, nextAddr)
	}

	pc.pushFree(s)
}

// firstKeyAtLeast returns the index into pc.keys of the smallest key >= n,
// or -1 if none exists. pc.mu must be held.
func (pc *pageCache) firstKeyAtLeast(n int) int {
	i := sort.SearchInts(pc.keys, n)
	if i == len(pc.keys) {
		return -1
	}
	return i
}

// pushFree threads s onto the head of freeSpans[s.numPages], creating the
// key if needed. pc.mu must be held.
func (pc *pageCache) pushFree(s *span) {
	k := s.numPages
	head, exists := pc.freeSpans[k]
	s.next = head
	pc.freeSpans[k] = s
	if !exists {
		i := sort.SearchInts(pc.keys, k)
		pc.keys = append(pc.keys, 0)
		copy(pc.keys[i+1:], pc.keys[i:])
		pc.keys[i] = k
	}
}

// popFreeHead detaches s (the current head of freeSpans[k]) from that
// list. pc.mu must be held.
func (pc *pageCache) popFreeHead(k int, s *span) {
	if s.next != nil {
		pc.freeSpans[k] = s.next
	} else {
		delete(pc.freeSpans, k)
		i := sort.SearchInts(pc.keys, k)
		pc.keys = append(pc.keys[:i], pc.keys[i+1:]...)
	}
}

// unlinkIfFree removes target from its free-by-page-count list if it is
// currently sitting on one, returning whether it was found there. A span
// that has been carved out to a central cache is not on any free list and
// must not be coalesced into. pc.mu must be held.
func (pc *pageCache) unlinkIfFree(target *span) bool {
	k := target.numPages
	head, ok := pc.freeSpans[k]
	if !ok {
		return false
	}
	if head == target {
		pc.popFreeHead(k, head)
		return true
	}
	for prev := head; prev.next != nil; prev = prev.next {
		if prev.next == target {
			prev.next = target.next
			return true
		}
	}
	return false
}

// systemAlloc maps n fresh, zeroed pages from the operating system in one
// mmap call, the unit allocateSpan then carves individual spans out of.
func (pc *pageCache) systemAlloc(n int) (uintptr, bool) {
	size := n * PageSize
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, false
	}
	// unix.Mmap with MAP_ANON already returns zeroed pages on every
	// platform this module targets; no explicit clear step is needed.
	return uintptr(unsafe.Pointer(unsafe.SliceData(b))), true
}
