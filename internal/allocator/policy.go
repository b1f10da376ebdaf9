package allocator

import (
	"sync/atomic"
	"unsafe"
)

// isPowerOfTwo reports whether s is an exact power of two. s is assumed
// non-zero; callers only reach here after the s == 0 no-op check.
func isPowerOfTwo(s uintptr) bool {
	return s&(s-1) == 0
}

// speculativeProbe walks up to SPECULATIVE_TRIES nodes of the given class,
// looking for the first region whose max payload is large enough for s.
// Allocate calls it on class k-1 for a non-power-of-two request of class
// k; because classOf indexes by the floor power of two, every region in
// class k-1 has a max payload below 2^k < s, so that call always returns
// nil. SPECULATIVE_TRIES is a throughput/fragmentation tuning knob, not a
// correctness constant (spec.md §9).
func (h *HeapManager) speculativeProbe(class int, s uintptr) *Region {
	tries := h.speculativeTries()
	node := h.lists.head(class)

	for i := 0; i < tries && node != nil; i++ {
		if maxPayload(node) >= s {
			h.lists.remove(node)
			return node
		}

		node = freeLinkOf(node).nextFree
	}

	return nil
}

// Allocate implements §4.5. A size-class free list is indexed by the
// largest power of two <= a request, which only guarantees a class k
// region is big enough when the request is itself a power of two; for a
// non-power-of-two request, class k may still hold regions smaller than
// the request (spec.md §4.5, §9's open question about the free-list
// indexing). Rather than silently returning an undersized region — which
// would violate the used_payload <= max_payload invariant (spec.md §3) —
// the ascending search below checks the candidate's actual size before
// accepting it; this never changes behavior for i > k, where the class
// bound already guarantees a fit, and only ever skips a class-k head that
// the reference design's own guarantee does not actually cover.
func (h *HeapManager) Allocate(s uintptr) unsafe.Pointer {
	if s == 0 {
		return nil
	}

	k := classOf(s)

	if k > minClass && !isPowerOfTwo(s) {
		if r := h.speculativeProbe(k-1, s); r != nil {
			return h.commit(r, s)
		}
	}

	for i := k; i < numClasses; i++ {
		if head := h.lists.head(i); head != nil && maxPayload(head) >= s {
			h.lists.remove(head)
			return h.commit(head, s)
		}
	}

	r := h.extendFor(s)
	if r == nil {
		return nil
	}

	atomic.AddUint64(&h.stats.allocCount, 1)
	atomic.AddUint64(&h.stats.totalAllocated, uint64(s))

	return payloadPtr(r)
}

// commit finalizes a free-list hit: marks the region used, applies the
// split rule, and records statistics. extend_for's own used regions are
// counted separately, since they never pass through commit.
func (h *HeapManager) commit(r *Region, s uintptr) unsafe.Pointer {
	r.usedPayload = s
	h.maybeSplit(r, s)

	atomic.AddUint64(&h.stats.allocCount, 1)
	atomic.AddUint64(&h.stats.totalAllocated, uint64(s))

	return payloadPtr(r)
}

// Free implements §4.7.
func (h *HeapManager) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}

	r := regionFromPayload(p)
	freed := r.usedPayload
	r.usedPayload = 0

	h.coalesce(r)

	atomic.AddUint64(&h.stats.freeCount, 1)
	atomic.AddUint64(&h.stats.totalFreed, uint64(freed))
}

// Reallocate implements §4.6: in-place shrink, in-place grow, right-
// neighbor absorption, or fallback copy, in that order of preference.
func (h *HeapManager) Reallocate(p unsafe.Pointer, s uintptr) unsafe.Pointer {
	if p == nil {
		return h.Allocate(s)
	}

	if s == 0 {
		h.Free(p)
		return nil
	}

	r := regionFromPayload(p)

	switch {
	case s == r.usedPayload:
		return p
	case s < r.usedPayload:
		r.usedPayload = s
		h.maybeSplit(r, s)

		return p
	case s <= maxPayload(r):
		r.usedPayload = s
		return p
	}

	if right := r.next; right != nil && isAdjacent(r, right) && isFree(right) &&
		s <= maxPayload(r)+right.totalSize {
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

		r.usedPayload = s

		return p
	}

	q := h.Allocate(s)
	if q == nil {
		return nil
	}

	copyBytes(q, p, r.usedPayload)
	h.Free(p)

	return q
}

// ZeroAllocate implements §4.8, including the documented reference-design
// quirk: nmemb is accepted but ignored, and size bytes (not nmemb*size)
// are allocated and zeroed. This is preserved verbatim per spec.md §9
// rather than silently "fixed" to nmemb*size semantics; callers that want
// nmemb*size must multiply before calling.
func (h *HeapManager) ZeroAllocate(nmemb, size uintptr) unsafe.Pointer {
	_ = nmemb

	q := h.Allocate(size)
	if q == nil {
		return nil
	}

	zeroBytes(q, size)

	return q
}

func copyBytes(dst, src unsafe.Pointer, n uintptr) {
	if n == 0 {
		return
	}

	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src), n))
}

func zeroBytes(p unsafe.Pointer, n uintptr) {
	if n == 0 {
		return
	}

	clear(unsafe.Slice((*byte)(p), n))
}
