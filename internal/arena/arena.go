package arena

import (
	"os"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/marksweep/memutils"
)

// GrowCallbacks is notified whenever the arena break moves
type GrowCallbacks interface {
	Grow(start uintptr, size int)
	Denied(size int)
}

// Options configure a new Arena
type Options struct {
	// ReserveBytes is the size of the address range reserved up front. It is rounded up to
	// the page size.
	ReserveBytes int
	// LimitBytes caps how much of the reservation Grow may hand out. Zero means the whole
	// reservation.
	LimitBytes int
	// Callbacks is optional
	Callbacks GrowCallbacks
}

// Arena is a contiguous reservation of raw memory handed out front to back by moving a break
// pointer, the way sbrk extends a process data segment. Memory is never returned until Close.
// Every successful Grow returns the previous break, so successive extensions are contiguous
// and monotonically increasing.
type Arena struct {
	data      []byte
	base      uintptr
	brk       int
	limit     int
	callbacks GrowCallbacks
	release   func([]byte) error
}

// New reserves an arena
func New(options Options) (*Arena, error) {
	if options.ReserveBytes <= 0 {
		return nil, errors.Newf("arena reservation must be positive, got %d", options.ReserveBytes)
	}
	if options.LimitBytes < 0 {
		return nil, errors.Newf("arena limit must not be negative, got %d", options.LimitBytes)
	}

	pageSize := os.Getpagesize()
	err := memutils.CheckPow2(pageSize, "page size")
	if err != nil {
		return nil, err
	}

	size := memutils.AlignUp(options.ReserveBytes, uint(pageSize))
	data, release, err := reserve(size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reserve %d bytes", size)
	}

	limit := options.LimitBytes
	if limit == 0 || limit > size {
		limit = size
	}

	return &Arena{
		data:      data,
		base:      uintptr(unsafe.Pointer(&data[0])),
		limit:     limit,
		callbacks: options.Callbacks,
		release:   release,
	}, nil
}

// Grow extends the break by size bytes and returns the address of the first new byte. When the
// limit would be exceeded nothing changes and an error wrapping memutils.ErrOutOfMemory is
// returned.
func (a *Arena) Grow(size int) (uintptr, error) {
	if a.data == nil {
		return 0, memutils.ErrClosed
	}
	if size <= 0 {
		return 0, errors.Wrapf(memutils.ErrInvalidSize, "arena growth of %d bytes", size)
	}

	if size > a.limit-a.brk {
		return 0, a.Refuse(size)
	}

	start := a.base + uintptr(a.brk)
	a.brk += size

	if a.callbacks != nil {
		a.callbacks.Grow(start, size)
	}

	return start, nil
}

// Refuse reports a growth of size bytes as denied without attempting it, for requests the
// caller already knows can never fit. The returned error wraps memutils.ErrOutOfMemory.
func (a *Arena) Refuse(size int) error {
	if a.callbacks != nil {
		a.callbacks.Denied(size)
	}
	return errors.Wrapf(memutils.ErrOutOfMemory, "growing by %d bytes would exceed the %d byte limit (%d in use)", size, a.limit, a.brk)
}

// Base is the address of the first byte of the reservation
func (a *Arena) Base() uintptr {
	return a.base
}

// Break is the address of the first byte not yet handed out
func (a *Arena) Break() uintptr {
	return a.base + uintptr(a.brk)
}

// Used is the number of bytes handed out so far
func (a *Arena) Used() int {
	return a.brk
}

// Limit is the number of bytes Grow may hand out in total
func (a *Arena) Limit() int {
	return a.limit
}

// Capacity is the size of the reservation
func (a *Arena) Capacity() int {
	return len(a.data)
}

// Contains reports whether addr lies in the part of the arena handed out so far
func (a *Arena) Contains(addr uintptr) bool {
	return addr >= a.base && addr < a.Break()
}

// Bytes returns the size bytes at addr. The range must lie below the break.
func (a *Arena) Bytes(addr uintptr, size int) []byte {
	if addr < a.base || size < 0 || addr+uintptr(size) > a.Break() {
		panic(errors.AssertionFailedf("range [%#x, %#x) is outside the arena [%#x, %#x)", addr, addr+uintptr(size), a.base, a.Break()))
	}

	offset := int(addr - a.base)
	return a.data[offset : offset+size : offset+size]
}

// Region is the whole reservation as a memutils.Region, including bytes above the break
func (a *Arena) Region() memutils.Region {
	return memutils.NewRegion(a.base, a.data)
}

// Close releases the reservation. The arena may not be used afterward.
func (a *Arena) Close() error {
	if a.data == nil {
		return nil
	}

	data := a.data
	a.data = nil
	a.brk = 0
	return a.release(data)
}
