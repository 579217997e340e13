package directory_test

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/marksweep/memutils"
)

// fakeMemory is a growable buffer that can leave a gap between extensions, the way a shared
// break pointer would if something else also extended the data segment
type fakeMemory struct {
	words []uint64
	data  []byte
	base  uintptr
	brk   int
	gap   int
	deny  bool
}

func newFakeMemory(size int, gap int) *fakeMemory {
	words := make([]uint64, size/8)
	data := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)
	return &fakeMemory{
		words: words,
		data:  data,
		base:  uintptr(unsafe.Pointer(&words[0])),
		gap:   gap,
	}
}

func (m *fakeMemory) Grow(size int) (uintptr, error) {
	if m.deny || m.brk+size > len(m.data) {
		return 0, errors.Wrap(memutils.ErrOutOfMemory, "fake memory exhausted")
	}

	start := m.base + uintptr(m.brk)
	m.brk += size + m.gap
	if m.brk > len(m.data) {
		m.brk = len(m.data)
	}
	return start, nil
}

func (m *fakeMemory) Bytes(addr uintptr, size int) []byte {
	offset := int(addr - m.base)
	return m.data[offset : offset+size]
}

func (m *fakeMemory) Contains(addr uintptr) bool {
	return addr >= m.base && addr < m.base+uintptr(m.brk)
}
