//go:build debugAsserts

package allocator

import (
	"fmt"

	herrors "github.com/orizon-lang/heapmgr/internal/errors"
)

// assertInvariants is compiled in only under the debugAsserts tag; the
// ordinary build never pays for it. It walks the region list in physical
// order and panics with a StandardError describing the first invariant
// it finds broken. It is meant to run from tests, not production code.
func (h *HeapManager) assertInvariants() {
	var prev *Region

	for r := firstRegion(h); r != nil; r = r.next {
		if r.totalSize < minRegionSize {
			panic(herrors.InvariantViolation("size-floor", address(r),
				fmt.Sprintf("total_size=%d < MIN_REGION_SIZE=%d", r.totalSize, minRegionSize)))
		}

		if address(r)%alignment != 0 {
			panic(herrors.InvariantViolation("alignment", address(r),
				fmt.Sprintf("address 0x%x is not %d-byte aligned", address(r), alignment)))
		}

		if r.usedPayload != 0 && r.usedPayload > maxPayload(r) {
			panic(herrors.InvariantViolation("use-free-dichotomy", address(r),
				fmt.Sprintf("used_payload=%d > max_payload=%d", r.usedPayload, maxPayload(r))))
		}

		if prev != nil && isAdjacent(prev, r) && isFree(prev) && isFree(r) {
			panic(herrors.InvariantViolation("no-adjacent-frees", address(r),
				"two physically adjacent regions are both free"))
		}

		prev = r
	}
}

// firstRegion walks backward from h.lastRegion to the head of the region
// list. Debug-only: the production path never needs to find the head.
func firstRegion(h *HeapManager) *Region {
	r := h.lastRegion
	for r != nil && r.prev != nil {
		r = r.prev
	}

	return r
}
