// Package heap is a self-hosted heap with a conservative mark-and-sweep collector. Memory is
// handed out first-fit from a Block Directory laid over a single growable arena, released
// blocks are merged with free neighbors immediately, and RunCollection reclaims every block that
// can no longer be reached from the stack and static roots.
package heap

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/marksweep/gc"
	"github.com/vkngwrapper/marksweep/internal/arena"
	"github.com/vkngwrapper/marksweep/internal/utils"
	"github.com/vkngwrapper/marksweep/memutils"
	"github.com/vkngwrapper/marksweep/memutils/directory"
	"golang.org/x/exp/slog"
)

// Counters are running totals of heap activity, kept for reporting only
type Counters struct {
	Acquires    int
	Releases    int
	Resizes     int
	Collections int
	// BlocksReclaimed is the number of blocks returned to the free state by collections
	BlocksReclaimed int
	// BytesReclaimed is the payload size of those blocks
	BytesReclaimed   int
	Extensions       int
	ExtendedBytes    int
	ExtensionsDenied int
}

// Heap owns an arena, the Block Directory describing it and the collector that sweeps it.
// Addresses handed out by Acquire are plain integers: use Bytes to reach the memory behind one.
type Heap struct {
	logger      *slog.Logger
	mutex       utils.OptionalMutex
	createFlags CreateFlags

	memory    *arena.Arena
	blocks    *directory.Directory
	collector *gc.Collector

	counters Counters
}

// Acquire returns the payload address of a block of at least size bytes, rounded up to a
// multiple of 8. A free block is reused first-fit, and split if the remainder is large enough;
// otherwise the heap is extended. On failure the heap is unchanged.
func (h *Heap) Acquire(size int) (uintptr, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::Acquire", slog.Int("Size", size))

	if h.memory == nil {
		return 0, memutils.ErrClosed
	}

	return h.acquire(size, h.createFlags&HeapCreateCollectOnExhaustion != 0)
}

func (h *Heap) acquire(size int, allowCollection bool) (uintptr, error) {
	if size <= 0 {
		return 0, errors.Wrapf(memutils.ErrInvalidSize, "acquiring %d bytes", size)
	}
	if size > h.memory.Limit() {
		// No block can ever hold it, and aligning it could overflow
		return 0, errors.Wrapf(h.memory.Refuse(size), "acquiring %d bytes", size)
	}

	size = memutils.AlignUp(size, memutils.SizeAlignment)

	block, last := h.blocks.FirstFit(size)
	if block != 0 {
		return h.reuse(block, size), nil
	}

	block, err := h.blocks.Extend(size, last)
	if err == nil {
		h.logger.Debug("    Heap extended", slog.String("Block", fmt.Sprintf("%#x", block)), slog.Int("Size", size))
		return h.handOut(block), nil
	}

	if !errors.Is(err, memutils.ErrOutOfMemory) || !allowCollection || !h.collector.RootTrackingInitialized() {
		return 0, err
	}

	h.logger.Debug("    Heap exhausted, collecting", slog.Int("Size", size))
	_, collectErr := h.runCollection()
	if collectErr != nil {
		return 0, errors.CombineErrors(err, collectErr)
	}

	block, _ = h.blocks.FirstFit(size)
	if block == 0 {
		return 0, err
	}

	return h.reuse(block, size), nil
}

func (h *Heap) reuse(block uintptr, size int) uintptr {
	h.blocks.Split(block, size)
	h.blocks.Header(block).MarkLive(directory.TagReused)

	return h.handOut(block)
}

func (h *Heap) handOut(block uintptr) uintptr {
	memutils.DebugFillRegion(h.blocks.Payload(block), memutils.CreatedFillPattern)
	h.counters.Acquires++

	return directory.PayloadOf(block)
}

// liveBlock returns the header address for ptr and panics if ptr is not the payload of a live
// block
func (h *Heap) liveBlock(ptr uintptr, operation string) uintptr {
	block, err := h.blocks.HeaderOf(ptr)
	if err != nil {
		panic(errors.WithAssertionFailure(errors.Wrapf(err, "%s", operation)))
	}

	header := h.blocks.Header(block)
	if !header.Tag.Valid() {
		panic(errors.WithAssertionFailure(errors.Wrapf(memutils.ErrCorruptHeader, "%s %#x: header tag is %s", operation, ptr, header.Tag)))
	}
	if header.IsFree() {
		panic(errors.WithAssertionFailure(errors.Wrapf(memutils.ErrDoubleRelease, "%s %#x: header tag is %s", operation, ptr, header.Tag)))
	}
	if !header.Tag.Allocated() {
		panic(errors.WithAssertionFailure(errors.Wrapf(memutils.ErrCorruptHeader, "%s %#x: live block tagged %s", operation, ptr, header.Tag)))
	}

	return block
}

// Release returns the block at ptr to the free state and merges it with any free neighbors.
// Releasing 0 does nothing. Releasing an address that is not a live payload, including one that
// was already released, panics with an assertion failure wrapping memutils.ErrDoubleRelease,
// memutils.ErrCorruptHeader or memutils.ErrInvalidAddress.
func (h *Heap) Release(ptr uintptr) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::Release", slog.String("Address", fmt.Sprintf("%#x", ptr)))

	if ptr == 0 {
		return
	}
	if h.memory == nil {
		panic(errors.WithAssertionFailure(errors.Wrapf(memutils.ErrClosed, "releasing %#x", ptr)))
	}

	h.release(ptr)
}

func (h *Heap) release(ptr uintptr) {
	block := h.liveBlock(ptr, "releasing")

	h.blocks.Header(block).MarkFreed()
	memutils.DebugFillRegion(h.blocks.Payload(block), memutils.DestroyedFillPattern)
	h.counters.Releases++

	merges := h.blocks.Coalesce()
	if merges > 0 {
		h.logger.Debug("    Coalesced free blocks", slog.Int("Merges", merges))
	}

	memutils.DebugValidate(coalescedDirectory{h.blocks})
}

// Resize changes the size of the allocation at ptr. A zero ptr acquires newSize bytes and a
// zero newSize releases ptr and returns 0. If the block already holds newSize bytes ptr is
// returned unchanged: blocks are never shrunk. Otherwise a new block is acquired, the old
// contents are copied over and the old block is released. If the new block cannot be acquired
// the old one is left untouched.
func (h *Heap) Resize(ptr uintptr, newSize int) (uintptr, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::Resize", slog.String("Address", fmt.Sprintf("%#x", ptr)), slog.Int("Size", newSize))

	if h.memory == nil {
		return 0, memutils.ErrClosed
	}
	if newSize < 0 {
		return 0, errors.Wrapf(memutils.ErrInvalidSize, "resizing to %d bytes", newSize)
	}

	if ptr == 0 {
		return h.acquire(newSize, h.createFlags&HeapCreateCollectOnExhaustion != 0)
	}

	if newSize == 0 {
		h.release(ptr)
		return 0, nil
	}

	block := h.liveBlock(ptr, "resizing")
	oldSize := int(h.blocks.Header(block).Size)
	if oldSize >= newSize {
		h.counters.Resizes++
		return ptr, nil
	}

	// The old block is only reachable through the caller's argument, which a collection cannot
	// see, so no collection may run here
	newPtr, err := h.acquire(newSize, false)
	if err != nil {
		return 0, err
	}

	newBlock, err := h.blocks.HeaderOf(newPtr)
	if err != nil {
		return 0, err
	}

	copy(h.blocks.Payload(newBlock).Data, h.blocks.Payload(block).Data)
	h.release(ptr)
	h.counters.Resizes++

	return newPtr, nil
}

// InitializeRootTracking records the origin of the stack roots. It must be called before the
// first collection; later calls do nothing.
func (h *Heap) InitializeRootTracking() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::InitializeRootTracking")

	if h.memory == nil {
		return memutils.ErrClosed
	}

	return h.collector.InitializeRootTracking()
}

// RunCollection reclaims every live block that cannot be reached from the roots. Reclaimed
// blocks are not merged with their neighbors unless HeapCreateCoalesceAfterCollection is set.
func (h *Heap) RunCollection() (gc.CycleStats, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::RunCollection")

	if h.memory == nil {
		return gc.CycleStats{}, memutils.ErrClosed
	}

	return h.runCollection()
}

func (h *Heap) runCollection() (gc.CycleStats, error) {
	stats, err := h.collector.Run()
	if err != nil {
		return stats, err
	}

	h.counters.Collections++
	h.counters.BlocksReclaimed += stats.Reclaimed
	h.counters.BytesReclaimed += stats.ReclaimedBytes

	if h.createFlags&HeapCreateCoalesceAfterCollection != 0 {
		merges := h.blocks.Coalesce()
		h.logger.Debug("    Coalesced after collection", slog.Int("Merges", merges))
	}

	return stats, nil
}

// Bytes returns the payload of the live allocation at ptr. The slice aliases heap memory and is
// only valid until the allocation is released or reclaimed.
func (h *Heap) Bytes(ptr uintptr) []byte {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.memory == nil {
		panic(errors.WithAssertionFailure(errors.Wrapf(memutils.ErrClosed, "reading %#x", ptr)))
	}

	return h.blocks.Payload(h.liveBlock(ptr, "reading")).Data
}

// IsLive reports whether ptr is the payload address of a live block. Unlike Bytes it never
// panics.
func (h *Heap) IsLive(ptr uintptr) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.memory == nil {
		return false
	}

	block, err := h.blocks.HeaderOf(ptr)
	if err != nil {
		return false
	}

	header := h.blocks.Header(block)
	return header.Tag.Allocated() && !header.IsFree()
}

// Validate checks the Block Directory for internal consistency
func (h *Heap) Validate() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.memory == nil {
		return memutils.ErrClosed
	}

	return h.blocks.Validate()
}

// LiveCount is the number of blocks holding an allocation
func (h *Heap) LiveCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.memory == nil {
		return 0
	}

	return h.blocks.LiveCount()
}

// FreeCount is the number of free blocks
func (h *Heap) FreeCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.memory == nil {
		return 0
	}

	return h.blocks.FreeCount()
}

// CalculateStatistics populates stats with the current block counts and sizes
func (h *Heap) CalculateStatistics(stats *memutils.DetailedStatistics) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	stats.Clear()
	if h.memory == nil {
		return
	}

	h.blocks.AddDetailedStatistics(stats)
}

// Counters returns the running totals of heap activity
func (h *Heap) Counters() Counters {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.counters
}

// Used is the number of arena bytes the heap has grown into, headers included
func (h *Heap) Used() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.memory == nil {
		return 0
	}

	return h.memory.Used()
}

// Close releases the arena. Allocations still live are reported at error level and freed along
// with everything else. The heap may not be used afterward.
func (h *Heap) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::Close")

	if h.memory == nil {
		return nil
	}

	err := h.blocks.VisitAllBlocks(func(addr uintptr, header *directory.BlockHeader) error {
		if !header.IsFree() {
			h.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] live allocation",
				slog.String("address", fmt.Sprintf("%#x", directory.PayloadOf(addr))),
				slog.Uint64("size", header.Size),
				slog.String("tag", header.Tag.String()),
			)
		}
		return nil
	})
	if err != nil {
		h.logger.LogAttrs(context.Background(),
			slog.LevelError,
			"[UNRELEASED MEMORY] error while iterating unreleased memory",
			slog.Any("error", err))
	}

	memory := h.memory
	h.memory = nil
	return memory.Close()
}

type coalescedDirectory struct {
	blocks *directory.Directory
}

func (d coalescedDirectory) Validate() error {
	return d.blocks.ValidateCoalesced()
}
