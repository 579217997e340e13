package directory

import (
	"fmt"
	"unsafe"
)

// Tag is the integrity marker stored in every block header. Only the values declared here are
// valid; anything else found in a header means the header has been overwritten.
type Tag uint32

const (
	// TagFresh marks a block carved out by extending the heap
	TagFresh Tag = 0x12345678
	// TagSplit marks the free remainder carved off the end of a reused block
	TagSplit Tag = 0x22222222
	// TagReused marks a free block that has been handed out again
	TagReused Tag = 0x77777777
	// TagFreed marks a block that was released or reclaimed by a collection
	TagFreed Tag = 0x55555555
)

var tagMapping = map[Tag]string{
	TagFresh:  "Fresh",
	TagSplit:  "Split",
	TagReused: "Reused",
	TagFreed:  "Freed",
}

func (t Tag) String() string {
	name, ok := tagMapping[t]
	if !ok {
		return fmt.Sprintf("Corrupt(%#08x)", uint32(t))
	}
	return name
}

// Valid reports whether t is one of the declared tags
func (t Tag) Valid() bool {
	_, ok := tagMapping[t]
	return ok
}

// Allocated reports whether t may be carried by a block holding a live allocation
func (t Tag) Allocated() bool {
	return t == TagFresh || t == TagReused
}

// BlockHeader is laid over the raw memory immediately preceding every payload. Its layout is
// fixed at 32 bytes on every platform so that payloads stay 8-byte aligned.
type BlockHeader struct {
	// Size is the usable payload size in bytes, always a multiple of 8
	Size uint64
	// Next is the address of the following header in ascending address order, or 0
	Next uint64
	// Free is 1 when the block holds no live allocation
	Free   uint32
	Marked uint32
	Tag    Tag
	_      uint32
}

// HeaderSize is the number of bytes a header occupies in front of its payload
const HeaderSize = int(unsafe.Sizeof(BlockHeader{}))

func (h *BlockHeader) IsFree() bool {
	return h.Free != 0
}

func (h *BlockHeader) IsMarked() bool {
	return h.Marked != 0
}

func (h *BlockHeader) SetMarked(marked bool) {
	if marked {
		h.Marked = 1
	} else {
		h.Marked = 0
	}
}

// MarkLive records a new allocation in the block
func (h *BlockHeader) MarkLive(tag Tag) {
	h.Free = 0
	h.Marked = 1
	h.Tag = tag
}

// MarkFreed returns the block to the free state
func (h *BlockHeader) MarkFreed() {
	h.Free = 1
	h.Marked = 0
	h.Tag = TagFreed
}

// PayloadOf returns the payload address of the block whose header is at addr
func PayloadOf(addr uintptr) uintptr {
	return addr + uintptr(HeaderSize)
}
