package allocator

import (
	"sync/atomic"
	"unsafe"
)

// splitThreshold is the minimum leftover needed to carve a new free region
// off the tail of r: enough for a minimal region plus worst-case alignment
// padding.
const splitThreshold = minRegionSize + alignment

// maybeSplit carves the unused tail of r into a new free region once r has
// been sized for a request of s bytes, provided the leftover is large
// enough to be worth tracking. When declined, the slack stays inside r as
// unused payload, reclaimed the next time r is freed.
func (h *HeapManager) maybeSplit(r *Region, s uintptr) {
	leftover := maxPayload(r) - s
	if leftover < splitThreshold {
		return
	}

	newAddr := alignUp(uintptr(payloadPtr(r))+s, alignment)
	oldEnd := end(r)

	tail := (*Region)(unsafe.Pointer(newAddr))
	tail.totalSize = oldEnd - newAddr
	tail.usedPayload = 0

	r.totalSize = newAddr - address(r)

	tail.next = r.next
	tail.prev = r
	if r.next != nil {
		r.next.prev = tail
	}
	r.next = tail

	if h.lastRegion == r {
		h.lastRegion = tail
	}

	h.lists.insert(tail)
	atomic.AddInt64(&h.stats.activeRegions, 1)
}

// coalesce merges r with its immediate physical neighbors if they are
// free, then inserts the (possibly merged) region into its size class. At
// most one left merge and one right merge ever happen, because the
// no-adjacent-frees invariant held before r was freed.
func (h *HeapManager) coalesce(r *Region) {
	if r.prev != nil && isAdjacent(r.prev, r) && isFree(r.prev) {
		left := r.prev

		h.lists.remove(left)
		left.totalSize += r.totalSize
		left.next = r.next

		if r.next != nil {
			r.next.prev = left
		}

		if h.lastRegion == r {
			h.lastRegion = left
		}

		r = left
		atomic.AddInt64(&h.stats.activeRegions, -1)
	}

	if r.next != nil && isAdjacent(r, r.next) && isFree(r.next) {
		right := r.next

		h.lists.remove(right)
		r.totalSize += right.totalSize
		r.next = right.next

		if right.next != nil {
			right.next.prev = r
		}

		if h.lastRegion == right {
			h.lastRegion = r
		}

		atomic.AddInt64(&h.stats.activeRegions, -1)
	}

	h.lists.insert(r)
}
