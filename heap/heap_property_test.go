package heap

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/marksweep/memutils"
)

type liveAllocation struct {
	ptr  uintptr
	size int
	fill byte
}

func requireNoOverlap(t *testing.T, h *Heap, live []*liveAllocation) {
	t.Helper()

	sorted := make([]*liveAllocation, len(live))
	copy(sorted, live)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ptr < sorted[j].ptr
	})

	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1]
		prevEnd := prev.ptr + uintptr(len(h.Bytes(prev.ptr)))
		require.LessOrEqual(t, prevEnd, sorted[i].ptr, "allocations at %#x and %#x overlap", prev.ptr, sorted[i].ptr)
	}
}

func requireContents(t *testing.T, h *Heap, alloc *liveAllocation) {
	t.Helper()

	data := h.Bytes(alloc.ptr)
	require.GreaterOrEqual(t, len(data), alloc.size)
	for i := 0; i < alloc.size; i++ {
		if data[i] != alloc.fill {
			require.Failf(t, "allocation contents were overwritten", "allocation at %#x byte %d is %#x, expected %#x", alloc.ptr, i, data[i], alloc.fill)
		}
	}
}

func fill(h *Heap, alloc *liveAllocation) {
	data := h.Bytes(alloc.ptr)
	for i := 0; i < alloc.size; i++ {
		data[i] = alloc.fill
	}
}

func TestRandomWorkloadProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42)) // Fixed seed for reproducibility

	h, err := New(nil, CreateOptions{ReserveBytes: 1 << 20})
	require.NoError(t, err)
	defer h.Close()

	var live []*liveAllocation
	nextFill := byte(1)

	for step := 0; step < 3000; step++ {
		op := rng.Intn(10)

		switch {
		case op < 5 || len(live) == 0:
			size := 1 + rng.Intn(256)
			ptr, err := h.Acquire(size)
			require.NoError(t, err)

			alloc := &liveAllocation{ptr: ptr, size: size, fill: nextFill}
			nextFill++
			fill(h, alloc)
			live = append(live, alloc)

		case op < 8:
			index := rng.Intn(len(live))
			alloc := live[index]
			requireContents(t, h, alloc)

			h.Release(alloc.ptr)
			live = append(live[:index], live[index+1:]...)

			require.NoError(t, h.blocks.ValidateCoalesced())

		default:
			index := rng.Intn(len(live))
			alloc := live[index]
			newSize := 1 + rng.Intn(512)

			ptr, err := h.Resize(alloc.ptr, newSize)
			require.NoError(t, err)

			alloc.ptr = ptr
			if newSize < alloc.size {
				alloc.size = newSize
			}
			requireContents(t, h, alloc)

			alloc.size = newSize
			fill(h, alloc)
			require.NoError(t, h.blocks.ValidateCoalesced())
		}

		require.NoError(t, h.blocks.Validate())
		require.Equal(t, len(live), h.LiveCount())
		requireNoOverlap(t, h, live)
	}

	for _, alloc := range live {
		requireContents(t, h, alloc)
	}
}

func TestCorruptTagPanics(t *testing.T) {
	h, err := New(nil, CreateOptions{ReserveBytes: 4096})
	require.NoError(t, err)
	defer h.Close()

	a, err := h.Acquire(16)
	require.NoError(t, err)

	block, err := h.blocks.HeaderOf(a)
	require.NoError(t, err)
	h.blocks.Header(block).Tag = 0x1BADB002

	require.False(t, h.IsLive(a))
	require.ErrorIs(t, h.Validate(), memutils.ErrCorruptHeader)

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered)
		require.ErrorIs(t, recovered.(error), memutils.ErrCorruptHeader)
	}()
	h.Release(a)
}
