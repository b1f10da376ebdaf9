//go:build !debugAsserts

package allocator

// assertInvariants is a no-op outside debugAsserts builds, so callers
// (mainly tests) can call it unconditionally without duplicating the
// build tag everywhere.
func (h *HeapManager) assertInvariants() {}
