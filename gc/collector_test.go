package gc_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/marksweep/gc"
	"github.com/vkngwrapper/marksweep/internal/arena"
	"github.com/vkngwrapper/marksweep/memutils"
	"github.com/vkngwrapper/marksweep/memutils/directory"
	"github.com/vkngwrapper/marksweep/roots"
	mock_roots "github.com/vkngwrapper/marksweep/roots/mocks"
	"go.uber.org/mock/gomock"
)

type testHeap struct {
	directory *directory.Directory
	last      uintptr
}

func newTestHeap(t *testing.T) *testHeap {
	memory, err := arena.New(arena.Options{ReserveBytes: 1 << 16})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, memory.Close())
	})

	return &testHeap{directory: directory.New(memory, 0)}
}

// block carves a new live block and returns its payload address
func (h *testHeap) block(t *testing.T, size int) uintptr {
	addr, err := h.directory.Extend(size, h.last)
	require.NoError(t, err)
	h.last = addr
	return directory.PayloadOf(addr)
}

// store writes value into the wordIndex'th word of the payload at payload
func (h *testHeap) store(t *testing.T, payload uintptr, wordIndex int, value uintptr) {
	header, err := h.directory.HeaderOf(payload)
	require.NoError(t, err)
	h.directory.Payload(header).SetWord(payload+uintptr(wordIndex*memutils.WordSize), value)
}

func (h *testHeap) isLive(t *testing.T, payload uintptr) bool {
	header, err := h.directory.HeaderOf(payload)
	require.NoError(t, err)
	return !h.directory.Header(header).IsFree()
}

func newRoots(t *testing.T) (*roots.ShadowStack, *roots.Globals) {
	stack, err := roots.NewShadowStack(0)
	require.NoError(t, err)
	globals, err := roots.NewGlobals(4)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, stack.Close())
		require.NoError(t, globals.Close())
	})

	return stack, globals
}

func TestRunRequiresRootTracking(t *testing.T) {
	h := newTestHeap(t)
	h.block(t, 16)

	collector := gc.New(nil, h.directory, nil, nil)
	require.False(t, collector.RootTrackingInitialized())

	_, err := collector.Run()
	require.ErrorIs(t, err, memutils.ErrRootTrackingUninitialized)
	require.Equal(t, 1, h.directory.LiveCount())
}

func TestStackOriginQueriedOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newTestHeap(t)
	a := h.block(t, 16)

	frame := memutils.NewRegion(0x1000, make([]byte, 2*memutils.WordSize))
	frame.SetWord(0x1000+uintptr(memutils.WordSize), a)

	stack := mock_roots.NewMockStackIntrospector(ctrl)
	stack.EXPECT().StackOrigin().Return(frame.End(), nil).Times(1)
	stack.EXPECT().FrameBoundary().Return(frame.Start).Times(2)
	stack.EXPECT().Region(frame.Start, frame.End()).Return(frame, nil).Times(2)

	collector := gc.New(nil, h.directory, stack, nil)
	require.NoError(t, collector.InitializeRootTracking())
	require.NoError(t, collector.InitializeRootTracking())
	require.True(t, collector.RootTrackingInitialized())

	for i := 0; i < 2; i++ {
		stats, err := collector.Run()
		require.NoError(t, err)
		require.Equal(t, i+1, stats.Cycle)
		require.Equal(t, 2, stats.RootWords)
		require.Equal(t, 1, stats.Marked)
		require.Zero(t, stats.Reclaimed)
	}

	require.True(t, h.isLive(t, a))
	require.Equal(t, gc.Stats{Collections: 2, Marked: 2}, collector.Stats())
}

func TestStaticSegmentBounds(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newTestHeap(t)
	a := h.block(t, 16)
	b := h.block(t, 16)

	segment := memutils.NewRegion(0x2000, make([]byte, 3*memutils.WordSize))
	segment.SetWord(0x2000, b+8)

	static := mock_roots.NewMockStaticSegment(ctrl)
	static.EXPECT().StaticBounds().Return(segment.Start, segment.End())
	static.EXPECT().Region(segment.Start, segment.End()).Return(segment, nil)

	collector := gc.New(nil, h.directory, nil, static)
	require.NoError(t, collector.InitializeRootTracking())

	stats, err := collector.Run()
	require.NoError(t, err)
	require.Equal(t, 3, stats.RootWords)
	require.Equal(t, 1, stats.RootMarked)
	require.False(t, h.isLive(t, a))
	require.True(t, h.isLive(t, b))
}

func TestFrameBoundaryAboveOrigin(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newTestHeap(t)
	h.block(t, 16)

	stack := mock_roots.NewMockStackIntrospector(ctrl)
	stack.EXPECT().StackOrigin().Return(uintptr(0x1000), nil)
	stack.EXPECT().FrameBoundary().Return(uintptr(0x1008))

	collector := gc.New(nil, h.directory, stack, nil)
	require.NoError(t, collector.InitializeRootTracking())

	_, err := collector.Run()
	require.Error(t, err)
}

func TestUnreachableBlockReclaimed(t *testing.T) {
	h := newTestHeap(t)
	stack, globals := newRoots(t)

	frame, err := stack.PushFrame(2)
	require.NoError(t, err)

	a := h.block(t, 40)
	b := h.block(t, 40)
	frame.Set(0, a)
	frame.Set(1, b)

	collector := gc.New(nil, h.directory, stack, globals)
	require.NoError(t, collector.InitializeRootTracking())

	stats, err := collector.Run()
	require.NoError(t, err)
	require.Zero(t, stats.Reclaimed)
	require.Equal(t, 2, h.directory.LiveCount())

	frame.Clear(1)
	stats, err = collector.Run()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Reclaimed)
	require.Equal(t, 40, stats.ReclaimedBytes)

	require.True(t, h.isLive(t, a))
	require.False(t, h.isLive(t, b))
	require.Equal(t, 1, h.directory.LiveCount())
	require.Equal(t, 1, h.directory.FreeCount())

	bHeader, err := h.directory.HeaderOf(b)
	require.NoError(t, err)
	require.Equal(t, directory.TagFreed, h.directory.Header(bHeader).Tag)
	require.False(t, h.directory.Header(bHeader).IsMarked())
	require.NoError(t, h.directory.Validate())
}

func TestTransitiveClosure(t *testing.T) {
	h := newTestHeap(t)
	stack, globals := newRoots(t)

	// Blocks are carved so that each link points backward in memory, forcing one pass per link
	d := h.block(t, 16)
	c := h.block(t, 16)
	b := h.block(t, 16)
	a := h.block(t, 16)
	cycleX := h.block(t, 16)
	cycleY := h.block(t, 16)
	orphan := h.block(t, 16)

	globals.Set(2, a)
	h.store(t, a, 1, b)
	h.store(t, b, 0, c+12)
	h.store(t, c, 1, d)
	h.store(t, d, 0, d)

	// An unreachable cycle is still garbage
	h.store(t, cycleX, 0, cycleY)
	h.store(t, cycleY, 0, cycleX)

	collector := gc.New(nil, h.directory, stack, globals)
	require.NoError(t, collector.InitializeRootTracking())

	stats, err := collector.Run()
	require.NoError(t, err)
	require.Equal(t, 1, stats.RootMarked)
	require.Equal(t, 4, stats.Marked)
	require.Equal(t, 3, stats.Reclaimed)
	require.GreaterOrEqual(t, stats.Passes, 2)

	for _, live := range []uintptr{a, b, c, d} {
		require.True(t, h.isLive(t, live))
	}
	for _, dead := range []uintptr{cycleX, cycleY, orphan} {
		require.False(t, h.isLive(t, dead))
	}
}

func TestStaleReferenceIntoFreeBlock(t *testing.T) {
	h := newTestHeap(t)
	stack, globals := newRoots(t)

	a := h.block(t, 16)
	b := h.block(t, 16)
	c := h.block(t, 16)
	d := h.block(t, 16)
	e := h.block(t, 16)

	bHeader, err := h.directory.HeaderOf(b)
	require.NoError(t, err)
	h.directory.Header(bHeader).MarkFreed()
	dHeader, err := h.directory.HeaderOf(d)
	require.NoError(t, err)
	h.directory.Header(dHeader).MarkFreed()

	// b is free but still referenced from a root, so its old contents are scanned and keep c
	// alive. Nothing references d, so e, referenced only from d's payload, is garbage.
	globals.Set(0, b)
	globals.Set(1, a)
	h.store(t, b, 0, c)
	h.store(t, d, 0, e)

	collector := gc.New(nil, h.directory, stack, globals)
	require.NoError(t, collector.InitializeRootTracking())

	stats, err := collector.Run()
	require.NoError(t, err)
	require.Equal(t, 2, stats.RootMarked)
	require.Equal(t, 3, stats.Marked)
	require.Equal(t, 1, stats.Reclaimed)

	require.True(t, h.isLive(t, a))
	require.True(t, h.isLive(t, c))
	require.False(t, h.isLive(t, e))

	// Free blocks are never swept, whatever their mark
	require.False(t, h.isLive(t, b))
	require.True(t, h.directory.Header(bHeader).IsMarked())
	require.Equal(t, directory.TagFreed, h.directory.Header(bHeader).Tag)
	require.False(t, h.directory.Header(dHeader).IsMarked())

	globals.Clear(0)
	stats, err = collector.Run()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Marked)
	require.Equal(t, 1, stats.Reclaimed)
	require.False(t, h.isLive(t, c))
	require.False(t, h.directory.Header(bHeader).IsMarked())
	require.NoError(t, h.directory.Validate())
}

func TestNoRootsReclaimsEverything(t *testing.T) {
	h := newTestHeap(t)
	for i := 0; i < 4; i++ {
		h.block(t, 24)
	}

	collector := gc.New(nil, h.directory, nil, nil)
	require.NoError(t, collector.InitializeRootTracking())

	stats, err := collector.Run()
	require.NoError(t, err)
	require.Equal(t, 4, stats.Reclaimed)
	require.Equal(t, 1, stats.Passes)

	// No coalescing happens during a collection
	require.Equal(t, 4, h.directory.FreeCount())
	require.Error(t, h.directory.ValidateCoalesced())
	require.NoError(t, h.directory.Validate())
}

func TestCorruptHeaderStopsCollection(t *testing.T) {
	h := newTestHeap(t)
	h.block(t, 16)
	b := h.block(t, 16)

	bHeader, err := h.directory.HeaderOf(b)
	require.NoError(t, err)
	h.directory.Header(bHeader).Tag = 0

	collector := gc.New(nil, h.directory, nil, nil)
	require.NoError(t, collector.InitializeRootTracking())

	_, err = collector.Run()
	require.ErrorIs(t, err, memutils.ErrCorruptHeader)
	require.Equal(t, 2, h.directory.LiveCount())
}
