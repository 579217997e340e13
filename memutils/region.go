package memutils

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
)

// Region is a view of raw memory: Data holds the bytes found at address Start. Regions are how
// the heap, the collector and the root providers exchange memory without converting
// integer addresses back into Go pointers.
type Region struct {
	Start uintptr
	Data  []byte
}

// NewRegion wraps data found at address start
func NewRegion(start uintptr, data []byte) Region {
	return Region{Start: start, Data: data}
}

// End returns the first address past the region
func (r Region) End() uintptr {
	return r.Start + uintptr(len(r.Data))
}

// Contains reports whether addr lies within [Start, End)
func (r Region) Contains(addr uintptr) bool {
	return addr >= r.Start && addr < r.End()
}

// Sub returns the part of the region covering [start, end)
func (r Region) Sub(start, end uintptr) (Region, error) {
	if start > end || start < r.Start || end > r.End() {
		return Region{}, cerrors.Newf("range [%#x, %#x) falls outside region [%#x, %#x)", start, end, r.Start, r.End())
	}

	return Region{Start: start, Data: r.Data[start-r.Start : end-r.Start]}, nil
}

// Word reads the machine word stored at addr
func (r Region) Word(addr uintptr) uintptr {
	offset := addr - r.Start
	return *(*uintptr)(unsafe.Pointer(&r.Data[offset : offset+uintptr(WordSize)][0]))
}

// SetWord stores value as a machine word at addr
func (r Region) SetWord(addr uintptr, value uintptr) {
	offset := addr - r.Start
	*(*uintptr)(unsafe.Pointer(&r.Data[offset : offset+uintptr(WordSize)][0])) = value
}

// VisitWords calls visit with every word-aligned machine word that lies entirely within the
// region, in ascending address order. A region whose bounds are not word-aligned is trimmed to
// the aligned words inside it.
func (r Region) VisitWords(visit func(addr uintptr, word uintptr)) int {
	start := AlignUp(r.Start, uint(WordSize))
	end := r.End()
	count := 0

	for addr := start; addr+uintptr(WordSize) <= end; addr += uintptr(WordSize) {
		visit(addr, r.Word(addr))
		count++
	}

	return count
}

// Fill writes pattern across the whole region
func (r Region) Fill(pattern uint8) {
	for i := range r.Data {
		r.Data[i] = pattern
	}
}
