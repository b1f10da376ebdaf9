package allocator

import (
	"sync/atomic"
	"unsafe"
)

// BreakSource formalizes the external extend_break collaborator spec.md §1
// treats as a black box: it extends a monotonic arena by n bytes and
// returns the base address of the new span, or reports failure. A
// BreakSource is assumed single-threaded and not shared with any other
// allocator, exactly as spec.md §6 specifies.
type BreakSource interface {
	ExtendBreak(n uintptr) (base uintptr, ok bool)
}

// defaultReserveSize bounds how much address space the portable and mmap
// break sources commit to up front. extend_break never shrinks this or
// gives memory back; running past it is reported as ordinary
// out-of-memory, the same way a real sbrk running into another mapping
// would fail.
const defaultReserveSize = 256 * 1024 * 1024

// extendFor implements §4.4 Arena extender: request enough space for a
// used region holding s bytes, repair alignment of whatever the
// BreakSource handed back, link the new region to last_region if they are
// physically adjacent, and shed any trailing slack via the ordinary split
// rule.
func (h *HeapManager) extendFor(s uintptr) *Region {
	n := headerSize + alignUp(s, alignment)

	base, ok := h.source.ExtendBreak(n)
	if !ok {
		return nil
	}

	headerAddr := base

	if rem := base % alignment; rem != 0 {
		deficit := alignment - rem

		// The arena is single-threaded by contract (spec.md §5), so the
		// second extension is expected to land immediately after the
		// first. If it fails, the first extension is leaked — accepted
		// per spec.md §9's open question, not treated as fatal.
		if _, ok := h.source.ExtendBreak(deficit); !ok {
			return nil
		}

		headerAddr = base + deficit
	}

	r := (*Region)(unsafe.Pointer(headerAddr))
	r.totalSize = n
	r.usedPayload = s
	r.prev = nil
	r.next = nil

	if h.lastRegion != nil && isAdjacent(h.lastRegion, r) {
		h.lastRegion.next = r
		r.prev = h.lastRegion
	}

	h.lastRegion = r

	h.maybeSplit(r, s)

	atomic.AddUint64(&h.stats.extendCount, 1)
	atomic.AddInt64(&h.stats.activeRegions, 1)

	return r
}

// sliceBreakSource is the portable, test-friendly BreakSource: it reserves
// one Go byte slice up front and bumps a committed-length counter, so every
// returned base is guaranteed contiguous with the last. It never grows the
// backing array (which could relocate it), so requests past the
// reservation fail exactly like real OOM.
type sliceBreakSource struct {
	backing   []byte
	base      uintptr
	committed uintptr
	reserve   uintptr
}

// NewSliceBreakSource reserves a single backing slice of the given size.
// The slice is pinned for the lifetime of the source: nothing in this
// package ever lets it become unreachable while regions still point into
// it.
func NewSliceBreakSource(reserve uintptr) *sliceBreakSource {
	backing := make([]byte, reserve)

	return &sliceBreakSource{
		backing: backing,
		base:    uintptr(unsafe.Pointer(&backing[0])),
		reserve: reserve,
	}
}

// ExtendBreak implements BreakSource.
func (s *sliceBreakSource) ExtendBreak(n uintptr) (uintptr, bool) {
	if s.committed+n > s.reserve {
		return 0, false
	}

	base := s.base + s.committed
	s.committed += n

	return base, true
}

func newDefaultBreakSource() BreakSource {
	return NewSliceBreakSource(defaultReserveSize)
}
