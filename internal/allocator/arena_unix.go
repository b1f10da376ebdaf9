//go:build unix

package allocator

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapBreakSource is a BreakSource backed by one anonymous mmap reservation,
// committed up front with PROT_NONE semantics traded for simplicity: the
// whole reserve is mapped read-write immediately, matching how the portable
// sliceBreakSource behaves, rather than reserving address space and
// faulting pages in lazily. It never calls munmap — extend_break is
// monotonic for the lifetime of the process, per spec.md §1.
type mmapBreakSource struct {
	backing   []byte
	base      uintptr
	committed uintptr
	reserve   uintptr
}

// newMmapBreakSource reserves a single anonymous, private mapping of the
// given size. The mapping is never grown or moved, so every address handed
// out by ExtendBreak stays valid for the process lifetime.
func newMmapBreakSource(reserve uintptr) (*mmapBreakSource, error) {
	data, err := unix.Mmap(-1, 0, int(reserve), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("allocator: mmap reserve %d bytes: %w", reserve, err)
	}

	return &mmapBreakSource{
		backing: data,
		base:    uintptr(unsafe.Pointer(&data[0])),
		reserve: reserve,
	}, nil
}

// NewMmapBreakSource is the exported constructor Config.NewBreakSource uses
// on unix targets when UseMmapArena is set.
func NewMmapBreakSource(reserve uintptr) (BreakSource, error) {
	return newMmapBreakSource(reserve)
}

// ExtendBreak implements BreakSource.
func (s *mmapBreakSource) ExtendBreak(n uintptr) (uintptr, bool) {
	if s.committed+n > s.reserve {
		return 0, false
	}

	base := s.base + s.committed
	s.committed += n

	return base, true
}
