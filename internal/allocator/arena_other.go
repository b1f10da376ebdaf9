//go:build !unix

package allocator

import "fmt"

// NewMmapBreakSource is unavailable on non-unix build targets; callers
// that request UseMmapArena there fall back to the portable slice-backed
// source instead (see Config.NewBreakSource).
func NewMmapBreakSource(reserve uintptr) (BreakSource, error) {
	return nil, fmt.Errorf("allocator: mmap break source unavailable on this platform")
}
