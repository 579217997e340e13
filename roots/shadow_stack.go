package roots

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/marksweep/internal/arena"
	"github.com/vkngwrapper/marksweep/memutils"
)

// DefaultStackBytes is the reservation used by NewShadowStack when none is given
const DefaultStackBytes = 64 * 1024

// Frame is a run of word-sized slots pushed onto a ShadowStack. A program stores the addresses
// it holds in local variables in its frame so that a collection can find them.
type Frame struct {
	region memutils.Region
	slots  int
}

// Slots is the number of words in the frame
func (f *Frame) Slots() int {
	return f.slots
}

func (f *Frame) slotAddr(slot int) uintptr {
	if slot < 0 || slot >= f.slots {
		panic(errors.AssertionFailedf("slot %d is out of range for a frame of %d slots", slot, f.slots))
	}

	return f.region.Start + uintptr(slot*memutils.WordSize)
}

// Set stores value in slot
func (f *Frame) Set(slot int, value uintptr) {
	f.region.SetWord(f.slotAddr(slot), value)
}

// Get returns the value in slot
func (f *Frame) Get(slot int) uintptr {
	return f.region.Word(f.slotAddr(slot))
}

// Clear zeroes slot, dropping whatever reference it held
func (f *Frame) Clear(slot int) {
	f.Set(slot, 0)
}

// ShadowStack is a downward-growing stack of frames in its own memory reservation. Its origin is
// the top of the reservation and its frame boundary is the current stack pointer, so the live
// frames always occupy [FrameBoundary(), origin).
type ShadowStack struct {
	memory *arena.Arena
	stack  memutils.Region
	sp     uintptr
	frames []*Frame
}

var _ StackIntrospector = &ShadowStack{}

// NewShadowStack reserves a stack of at least size bytes. Zero or less selects
// DefaultStackBytes.
func NewShadowStack(size int) (*ShadowStack, error) {
	if size <= 0 {
		size = DefaultStackBytes
	}

	memory, err := arena.New(arena.Options{ReserveBytes: size})
	if err != nil {
		return nil, errors.Wrap(err, "failed to reserve the shadow stack")
	}

	stack := memory.Region()
	return &ShadowStack{
		memory: memory,
		stack:  stack,
		sp:     stack.End(),
	}, nil
}

// PushFrame reserves a zeroed frame of slots words below the current stack pointer
func (s *ShadowStack) PushFrame(slots int) (*Frame, error) {
	if s.memory == nil {
		return nil, memutils.ErrClosed
	}
	if slots <= 0 {
		return nil, errors.Newf("a frame needs at least one slot, got %d", slots)
	}

	size := uintptr(slots * memutils.WordSize)
	if s.sp-s.stack.Start < size {
		return nil, errors.Newf("stack overflow: pushing %d slots with %d bytes left", slots, s.sp-s.stack.Start)
	}

	region, err := s.stack.Sub(s.sp-size, s.sp)
	if err != nil {
		return nil, err
	}
	region.Fill(0)

	frame := &Frame{region: region, slots: slots}
	s.frames = append(s.frames, frame)
	s.sp -= size

	return frame, nil
}

// PopFrame discards the innermost frame. Its slots are zeroed so nothing it held survives.
func (s *ShadowStack) PopFrame() error {
	if len(s.frames) == 0 {
		return errors.New("no frame to pop")
	}

	frame := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	frame.region.Fill(0)
	s.sp = frame.region.End()

	return nil
}

// Depth is the number of frames pushed
func (s *ShadowStack) Depth() int {
	return len(s.frames)
}

func (s *ShadowStack) StackOrigin() (uintptr, error) {
	if s.memory == nil {
		return 0, memutils.ErrClosed
	}

	return s.stack.End(), nil
}

func (s *ShadowStack) FrameBoundary() uintptr {
	return s.sp
}

func (s *ShadowStack) Region(start, end uintptr) (memutils.Region, error) {
	if s.memory == nil {
		return memutils.Region{}, memutils.ErrClosed
	}

	return s.stack.Sub(start, end)
}

// Close releases the stack reservation
func (s *ShadowStack) Close() error {
	if s.memory == nil {
		return nil
	}

	memory := s.memory
	s.memory = nil
	s.frames = nil
	s.stack = memutils.Region{}
	return memory.Close()
}
