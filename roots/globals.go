package roots

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/marksweep/internal/arena"
	"github.com/vkngwrapper/marksweep/memutils"
)

// Globals is a static data segment of a fixed number of word-sized slots, standing in for the
// global variables of a program
type Globals struct {
	memory *arena.Arena
	region memutils.Region
	slots  int
}

var _ StaticSegment = &Globals{}

// NewGlobals reserves a zeroed segment of slots words
func NewGlobals(slots int) (*Globals, error) {
	if slots <= 0 {
		return nil, errors.Newf("globals need at least one slot, got %d", slots)
	}

	size := slots * memutils.WordSize
	memory, err := arena.New(arena.Options{ReserveBytes: size})
	if err != nil {
		return nil, errors.Wrap(err, "failed to reserve the static segment")
	}

	start, err := memory.Grow(size)
	if err != nil {
		_ = memory.Close()
		return nil, err
	}

	return &Globals{
		memory: memory,
		region: memutils.NewRegion(start, memory.Bytes(start, size)),
		slots:  slots,
	}, nil
}

// Slots is the number of words in the segment
func (g *Globals) Slots() int {
	return g.slots
}

func (g *Globals) slotAddr(slot int) uintptr {
	if slot < 0 || slot >= g.slots {
		panic(errors.AssertionFailedf("global slot %d is out of range for %d slots", slot, g.slots))
	}

	return g.region.Start + uintptr(slot*memutils.WordSize)
}

// Set stores value in slot
func (g *Globals) Set(slot int, value uintptr) {
	g.region.SetWord(g.slotAddr(slot), value)
}

// Get returns the value in slot
func (g *Globals) Get(slot int) uintptr {
	return g.region.Word(g.slotAddr(slot))
}

// Clear zeroes slot
func (g *Globals) Clear(slot int) {
	g.Set(slot, 0)
}

func (g *Globals) StaticBounds() (start, end uintptr) {
	return g.region.Start, g.region.End()
}

func (g *Globals) Region(start, end uintptr) (memutils.Region, error) {
	if g.memory == nil {
		return memutils.Region{}, memutils.ErrClosed
	}

	return g.region.Sub(start, end)
}

// Close releases the segment
func (g *Globals) Close() error {
	if g.memory == nil {
		return nil
	}

	memory := g.memory
	g.memory = nil
	g.region = memutils.Region{}
	return memory.Close()
}
