package directory

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/marksweep/memutils"
)

// DefaultMinSplitSize is the smallest free remainder a split is allowed to leave behind
const DefaultMinSplitSize = 8

// Memory is the raw memory a Directory lives in. Grow is the heap-extension primitive: it must
// return contiguous, monotonically increasing addresses, or fail without side effects.
type Memory interface {
	Grow(size int) (uintptr, error)
	Bytes(addr uintptr, size int) []byte
	Contains(addr uintptr) bool
}

// Directory is the singly linked, address-ordered chain of block headers describing every
// region carved out of a heap. Headers are never removed except by merging a free block into a
// physically adjacent free predecessor.
type Directory struct {
	memory   Memory
	head     uintptr
	minSplit int
}

// New creates an empty Directory over memory. minSplitSize is rounded up to the size alignment;
// zero or less selects DefaultMinSplitSize.
func New(memory Memory, minSplitSize int) *Directory {
	if minSplitSize <= 0 {
		minSplitSize = DefaultMinSplitSize
	}

	return &Directory{
		memory:   memory,
		minSplit: memutils.AlignUp(minSplitSize, memutils.SizeAlignment),
	}
}

// Head is the address of the first header, or 0 when nothing has been carved out yet
func (d *Directory) Head() uintptr {
	return d.head
}

// MinSplitSize is the smallest free remainder Split will create
func (d *Directory) MinSplitSize() int {
	return d.minSplit
}

// Header overlays a BlockHeader on the memory at addr
func (d *Directory) Header(addr uintptr) *BlockHeader {
	data := d.memory.Bytes(addr, HeaderSize)
	return (*BlockHeader)(unsafe.Pointer(&data[0]))
}

// Next returns the address of the header following addr, or 0
func (d *Directory) Next(addr uintptr) uintptr {
	return uintptr(d.Header(addr).Next)
}

// Payload returns the payload of the block whose header is at addr
func (d *Directory) Payload(addr uintptr) memutils.Region {
	size := int(d.Header(addr).Size)
	payload := PayloadOf(addr)
	return memutils.NewRegion(payload, d.memory.Bytes(payload, size))
}

// HeaderOf recovers the header address from a payload address by the fixed header offset. It
// only checks that the header would lie inside the heap; it does not check that a header is
// actually there.
func (d *Directory) HeaderOf(payload uintptr) (uintptr, error) {
	if payload%uintptr(memutils.SizeAlignment) != 0 || payload < uintptr(HeaderSize) {
		return 0, errors.Wrapf(memutils.ErrInvalidAddress, "%#x is not a payload address", payload)
	}

	addr := payload - uintptr(HeaderSize)
	if !d.memory.Contains(addr) || !d.memory.Contains(payload-1) {
		return 0, errors.Wrapf(memutils.ErrInvalidAddress, "%#x is outside the heap", payload)
	}

	return addr, nil
}

// Extend grows the heap by one block with a payload of size bytes and links it after last.
// When the directory is empty last must be 0 and the new block becomes the head. The new block
// is live, marked and tagged TagFresh. If the memory refuses to grow, the directory is unchanged.
func (d *Directory) Extend(size int, last uintptr) (uintptr, error) {
	if size <= 0 || size%int(memutils.SizeAlignment) != 0 {
		return 0, errors.Wrapf(memutils.ErrInvalidSize, "block payload of %d bytes", size)
	}
	if (last == 0) != (d.head == 0) {
		return 0, errors.AssertionFailedf("extending after %#x but the directory head is %#x", last, d.head)
	}

	addr, err := d.memory.Grow(HeaderSize + size)
	if err != nil {
		return 0, err
	}

	block := d.Header(addr)
	block.Size = uint64(size)
	block.Next = 0
	block.MarkLive(TagFresh)

	if last == 0 {
		d.head = addr
	} else {
		d.Header(last).Next = uint64(addr)
	}

	return addr, nil
}

// FirstFit returns the first free block whose payload can hold size bytes. When there is none,
// block is 0 and last is the final header in the directory (0 if the directory is empty), ready
// to be passed to Extend.
func (d *Directory) FirstFit(size int) (block uintptr, last uintptr) {
	for current := d.head; current != 0; current = d.Next(current) {
		header := d.Header(current)
		if header.IsFree() && header.Size >= uint64(size) {
			return current, last
		}

		last = current
	}

	return 0, last
}

// Split shrinks the block at addr to size bytes and carves the remainder into a new free block
// linked directly after it, if the remainder can hold a header plus the minimum split size.
// Otherwise the block is left whole and Split returns false.
func (d *Directory) Split(addr uintptr, size int) bool {
	block := d.Header(addr)
	if block.Size < uint64(size+HeaderSize+d.minSplit) {
		return false
	}

	remaining := block.Size - uint64(size) - uint64(HeaderSize)
	suffixAddr := PayloadOf(addr) + uintptr(size)

	suffix := d.Header(suffixAddr)
	suffix.Size = remaining
	suffix.Next = block.Next
	suffix.Free = 1
	suffix.Marked = 0
	suffix.Tag = TagSplit

	block.Size = uint64(size)
	block.Next = uint64(suffixAddr)

	return true
}

// Coalesce merges every run of free blocks that are adjacent both in the list and in memory
// into a single block, and returns the number of merges. Blocks that follow one another in the
// list without touching are never merged.
func (d *Directory) Coalesce() int {
	merges := 0
	current := d.head

	for current != 0 {
		block := d.Header(current)
		nextAddr := uintptr(block.Next)
		if nextAddr == 0 {
			break
		}

		next := d.Header(nextAddr)
		if block.IsFree() && next.IsFree() && PayloadOf(current)+uintptr(block.Size) == nextAddr {
			block.Size += uint64(HeaderSize) + next.Size
			block.Next = next.Next
			merges++

			memutils.DebugFillRegion(memutils.NewRegion(nextAddr, d.memory.Bytes(nextAddr, HeaderSize)), memutils.DestroyedFillPattern)

			// Stay put: the grown block may touch the one after it too
			continue
		}

		current = nextAddr
	}

	return merges
}

// Find returns the block whose payload contains candidate, free or not
func (d *Directory) Find(candidate uintptr) (uintptr, bool) {
	for current := d.head; current != 0; current = d.Next(current) {
		payload := PayloadOf(current)
		if candidate >= payload && candidate < payload+uintptr(d.Header(current).Size) {
			return current, true
		}
	}

	return 0, false
}

// VisitAllBlocks calls visit once for each header in address order. The walk stops at the first
// error from visit, or after visiting a header whose tag is corrupt, since its Next link cannot
// be trusted.
func (d *Directory) VisitAllBlocks(visit func(addr uintptr, header *BlockHeader) error) error {
	for current := d.head; current != 0; {
		header := d.Header(current)
		err := visit(current, header)
		if err != nil {
			return err
		}

		if !header.Tag.Valid() {
			return errors.Wrapf(memutils.ErrCorruptHeader, "header at %#x has tag %s", current, header.Tag)
		}

		current = uintptr(header.Next)
	}

	return nil
}

// LiveCount is the number of blocks holding an allocation
func (d *Directory) LiveCount() int {
	count := 0
	_ = d.VisitAllBlocks(func(addr uintptr, header *BlockHeader) error {
		if !header.IsFree() {
			count++
		}
		return nil
	})
	return count
}

// FreeCount is the number of free blocks
func (d *Directory) FreeCount() int {
	count := 0
	_ = d.VisitAllBlocks(func(addr uintptr, header *BlockHeader) error {
		if header.IsFree() {
			count++
		}
		return nil
	})
	return count
}

// Validate performs internal consistency checks on the directory: headers ascend in address
// order, no block extends into the next, every block lies inside the memory, tags are valid and
// agree with the free flag.
func (d *Directory) Validate() error {
	var prevEnd uintptr

	for current := d.head; current != 0; {
		if current%uintptr(memutils.SizeAlignment) != 0 {
			return errors.Errorf("header at %#x is misaligned", current)
		}
		if current < prevEnd {
			return errors.Errorf("header at %#x starts before the end of the previous block at %#x", current, prevEnd)
		}
		if !d.memory.Contains(current) || !d.memory.Contains(current+uintptr(HeaderSize)-1) {
			return errors.Errorf("header at %#x is outside the heap", current)
		}

		header := d.Header(current)
		if !header.Tag.Valid() {
			return errors.Wrapf(memutils.ErrCorruptHeader, "header at %#x has tag %s", current, header.Tag)
		}
		if header.Free > 1 || header.Marked > 1 {
			return errors.Wrapf(memutils.ErrCorruptHeader, "header at %#x has free flag %d and mark %d", current, header.Free, header.Marked)
		}
		if header.IsFree() == header.Tag.Allocated() {
			return errors.Errorf("header at %#x is free=%t but tagged %s", current, header.IsFree(), header.Tag)
		}
		if header.Size == 0 || header.Size%uint64(memutils.SizeAlignment) != 0 {
			return errors.Errorf("block at %#x has invalid size %d", current, header.Size)
		}

		end := PayloadOf(current) + uintptr(header.Size)
		if !d.memory.Contains(end - 1) {
			return errors.Errorf("block at %#x of size %d runs past the end of the heap", current, header.Size)
		}

		prevEnd = end
		current = uintptr(header.Next)
	}

	return nil
}

// ValidateCoalesced runs Validate and additionally checks that no two free blocks are adjacent
// in memory, which holds after every release.
func (d *Directory) ValidateCoalesced() error {
	err := d.Validate()
	if err != nil {
		return err
	}

	for current := d.head; current != 0; current = d.Next(current) {
		block := d.Header(current)
		nextAddr := uintptr(block.Next)
		if nextAddr == 0 {
			break
		}

		if block.IsFree() && d.Header(nextAddr).IsFree() && PayloadOf(current)+uintptr(block.Size) == nextAddr {
			return errors.Errorf("free blocks at %#x and %#x are adjacent but were not merged", current, nextAddr)
		}
	}

	return nil
}
