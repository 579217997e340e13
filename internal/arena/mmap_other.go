//go:build !unix

package arena

import (
	"unsafe"

	"github.com/vkngwrapper/marksweep/memutils"
)

const fallbackAlignment = 4096

// reserve falls back to a Go-allocated buffer. Large Go allocations do not move, and the heap
// only stores integer addresses in it, so the Go collector never follows them.
func reserve(size int) ([]byte, func([]byte) error, error) {
	data := make([]byte, size+fallbackAlignment)
	start := uintptr(unsafe.Pointer(&data[0]))
	offset := int(memutils.AlignUp(start, fallbackAlignment) - start)
	return data[offset : offset+size : offset+size], func([]byte) error { return nil }, nil
}
