package allocator

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// managerStats holds the counters the diagnostics layer reads. They are
// updated with sync/atomic purely so a separate diagnostics goroutine can
// take a consistent snapshot; the allocate/free/reallocate hot path itself
// remains single-threaded and otherwise lock-free, per spec.
type managerStats struct {
	totalAllocated uint64
	totalFreed     uint64
	allocCount     uint64
	freeCount      uint64
	extendCount    uint64
	activeRegions  int64
}

// HeapManager owns the two pieces of process-wide state the reference
// design calls out as global: the free-list array and last_region. Wrapping
// them in one value, instantiated once, is the recommended shape for a
// language that discourages mutable globals (spec.md §9, Design Notes).
type HeapManager struct {
	lists      freeLists
	lastRegion *Region
	source     BreakSource

	// cfgTries is the only tunable the core algorithm reads per call
	// (SPECULATIVE_TRIES). It is stored atomically so WatchConfig (through
	// Config.Apply) can update it from a different goroutine without the
	// mutator ever taking a lock.
	cfgTries int32

	stats managerStats
}

// Option configures a HeapManager at construction time.
type Option func(*HeapManager)

// WithSpeculativeTries overrides the default SPECULATIVE_TRIES = 3 probe
// bound. It is a throughput/fragmentation tuning knob, never a correctness
// constant — property tests must not depend on its value (spec.md §9).
func WithSpeculativeTries(n int) Option {
	return func(h *HeapManager) {
		atomic.StoreInt32(&h.cfgTries, int32(n))
	}
}

const defaultSpeculativeTries = 3

// New creates a HeapManager backed by the given BreakSource. The manager
// starts with an empty heap: the first Allocate call triggers the first
// arena extension.
func New(source BreakSource, opts ...Option) *HeapManager {
	h := &HeapManager{source: source}
	atomic.StoreInt32(&h.cfgTries, defaultSpeculativeTries)

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *HeapManager) speculativeTries() int {
	return int(atomic.LoadInt32(&h.cfgTries))
}

// Stats returns a point-in-time snapshot of allocation statistics. Safe to
// call from any goroutine; it never touches free-list or region-link state.
func (h *HeapManager) Stats() AllocatorStats {
	return AllocatorStats{
		TotalAllocated: atomic.LoadUint64(&h.stats.totalAllocated),
		TotalFreed:     atomic.LoadUint64(&h.stats.totalFreed),
		AllocCount:     atomic.LoadUint64(&h.stats.allocCount),
		FreeCount:      atomic.LoadUint64(&h.stats.freeCount),
		ExtendCount:    atomic.LoadUint64(&h.stats.extendCount),
		ActiveRegions:  atomic.LoadInt64(&h.stats.activeRegions),
	}
}

// AllocatorStats is the read-only snapshot exposed to diagnostics. It is
// deliberately the only window the outside world has into the heap
// manager's internals — spec.md §1 treats statistics as an external
// collaborator, not part of the heap manager's own contract.
type AllocatorStats struct {
	TotalAllocated uint64 `json:"total_allocated"`
	TotalFreed     uint64 `json:"total_freed"`
	AllocCount     uint64 `json:"alloc_count"`
	FreeCount      uint64 `json:"free_count"`
	ExtendCount    uint64 `json:"extend_count"`
	ActiveRegions  int64  `json:"active_regions"`
}

// defaultManager and its guarding once support the package-level
// Allocate/Free/Reallocate/ZeroAllocate functions, the thinnest possible
// forwarding layer over a single process-wide instance — the C-style
// public symbol surface spec.md §1 describes as a one-to-one wrapper over
// the heap manager.
var (
	defaultManager     *HeapManager
	defaultManagerOnce sync.Once
)

func defaultHeap() *HeapManager {
	defaultManagerOnce.Do(func() {
		defaultManager = New(newDefaultBreakSource())
	})

	return defaultManager
}

// Allocate forwards to the process-wide default HeapManager.
func Allocate(size uintptr) unsafe.Pointer { return defaultHeap().Allocate(size) }

// Free forwards to the process-wide default HeapManager.
func Free(p unsafe.Pointer) { defaultHeap().Free(p) }

// Reallocate forwards to the process-wide default HeapManager.
func Reallocate(p unsafe.Pointer, size uintptr) unsafe.Pointer {
	return defaultHeap().Reallocate(p, size)
}

// ZeroAllocate forwards to the process-wide default HeapManager.
func ZeroAllocate(nmemb, size uintptr) unsafe.Pointer {
	return defaultHeap().ZeroAllocate(nmemb, size)
}

// GetStats returns statistics for the process-wide default HeapManager.
func GetStats() AllocatorStats { return defaultHeap().Stats() }
