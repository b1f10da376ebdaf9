package allocator

import "math/bits"

// classOf returns floor(log2(max(s, minPayload))) — the exponent of the
// largest power of two less than or equal to s. A free list at class k
// holds regions whose max payload is >= 2^k, so any region found at class
// k' >= classOf(s) is guaranteed big enough when s is itself a power of
// two. For non-power-of-two s, class classOf(s) may still contain regions
// that are too small (between 2^k and s-1); Allocate's ascending search
// checks the class-k head's actual size and moves on to the next class
// when it is too small.
func classOf(s uintptr) int {
	if s < minPayload {
		s = minPayload
	}

	return bits.Len(uint(s)) - 1
}

// freeLists holds one doubly-linked list per size class, indexed 0..32.
// Only indices [minClass, numClasses) are ever populated, since no region
// can have a max payload smaller than minPayload.
type freeLists struct {
	heads [numClasses]*Region
}

// insert pushes r onto the head of the list for its size class. Head
// insertion is LIFO, favoring temporal locality of recently freed regions
// over best-fit placement.
func (fl *freeLists) insert(r *Region) {
	class := classOf(maxPayload(r))
	link := freeLinkOf(r)
	old := fl.heads[class]

	link.prevFree = nil
	link.nextFree = old

	if old != nil {
		freeLinkOf(old).prevFree = r
	}

	fl.heads[class] = r
}

// remove unlinks r from whichever size class it currently occupies. r must
// be free and must actually be a member of its class's list.
func (fl *freeLists) remove(r *Region) {
	class := classOf(maxPayload(r))
	link := freeLinkOf(r)

	if link.prevFree != nil {
		freeLinkOf(link.prevFree).nextFree = link.nextFree
	} else {
		fl.heads[class] = link.nextFree
	}

	if link.nextFree != nil {
		freeLinkOf(link.nextFree).prevFree = link.prevFree
	}

	link.prevFree = nil
	link.nextFree = nil
}

// head returns the first region in the given class's list, or nil.
func (fl *freeLists) head(class int) *Region {
	return fl.heads[class]
}
