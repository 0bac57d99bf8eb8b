package goramp

import "unsafe"

// A freeLink is the intrusive node threaded through a free block's first
// machine word: while a block is free, its first word is its own storage
// for the next-pointer; while allocated, the whole block is opaque caller
// memory and nothing here touches it again.
type freeLink struct {
	next unsafe.Pointer
}

// linkOf reinterprets a raw block pointer as a *freeLink so its next field
// can be read or written. p must point at a currently-free block.
func linkOf(p unsafe.Pointer) *freeLink {
	return (*freeLink)(p)
}

// nextOf reads the next-pointer stored in the first word of block p.
func nextOf(p unsafe.Pointer) unsafe.Pointer {
	return linkOf(p).next
}

// setNext overwrites the next-pointer stored in the first word of block p.
func setNext(p, next unsafe.Pointer) {
	linkOf(p).next = next
}

// chainLength walks a null-terminated intrusive chain and counts its
// nodes. It is O(n); the thread cache uses it to size the batch a
// central-cache refill hands back.
func chainLength(head unsafe.Pointer) int {
	n := 0
	for p := head; p != nil; p = nextOf(p) {
		n++
	}
	return n
}
