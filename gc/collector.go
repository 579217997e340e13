// Package gc implements a stop-the-world, non-moving, conservative mark-and-sweep collector over
// a Block Directory. Every aligned word in the roots and in marked payloads is treated as a
// possible address: if it falls inside a block's payload, that block is marked. Free blocks are
// marked and scanned like any other, so a stale word pointing into a released block keeps
// whatever that block's old contents reference alive.
package gc

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/marksweep/memutils"
	"github.com/vkngwrapper/marksweep/memutils/directory"
	"github.com/vkngwrapper/marksweep/roots"
	"golang.org/x/exp/slog"
)

// Collector finds the blocks of a directory that can no longer be reached from a stack or a
// static segment and returns them to the free state. Either root provider may be nil, in which
// case it contributes no roots. A Collector is not safe for concurrent use.
type Collector struct {
	logger    *slog.Logger
	directory *directory.Directory
	stack     roots.StackIntrospector
	static    roots.StaticSegment

	initialized bool
	origin      uintptr

	stats Stats
}

// New creates a collector. InitializeRootTracking must be called before the first Run.
func New(logger *slog.Logger, blocks *directory.Directory, stack roots.StackIntrospector, static roots.StaticSegment) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Collector{
		logger:    logger,
		directory: blocks,
		stack:     stack,
		static:    static,
	}
}

// InitializeRootTracking records the stack origin. Only the first call queries the stack; later
// calls do nothing.
func (c *Collector) InitializeRootTracking() error {
	if c.initialized {
		return nil
	}

	if c.stack != nil {
		origin, err := c.stack.StackOrigin()
		if err != nil {
			return errors.Wrap(err, "failed to locate the stack origin")
		}
		c.origin = origin
	}

	c.initialized = true
	c.logger.Debug("Collector::InitializeRootTracking", slog.String("StackOrigin", fmt.Sprintf("%#x", c.origin)))
	return nil
}

// RootTrackingInitialized reports whether InitializeRootTracking has succeeded
func (c *Collector) RootTrackingInitialized() bool {
	return c.initialized
}

// Stats returns the totals over every completed collection
func (c *Collector) Stats() Stats {
	return c.stats
}

// Run performs one full collection: clear every mark, mark the blocks referenced from the roots,
// propagate marks through marked payloads until nothing changes, then sweep every live block
// left unmarked. Free blocks keep whatever mark they received, and nothing is coalesced.
func (c *Collector) Run() (CycleStats, error) {
	if !c.initialized {
		return CycleStats{}, memutils.ErrRootTrackingUninitialized
	}

	memutils.DebugValidate(c.directory)

	cycle := CycleStats{Cycle: c.stats.Collections + 1}

	err := c.directory.VisitAllBlocks(func(addr uintptr, header *directory.BlockHeader) error {
		header.SetMarked(false)
		return nil
	})
	if err != nil {
		return cycle, err
	}

	index, err := buildIndex(c.directory)
	if err != nil {
		return cycle, err
	}

	newlyMarked := 0
	mark := func(addr uintptr, word uintptr) {
		i, found := index.lookup(word)
		if !found {
			return
		}

		header := c.directory.Header(index.spans[i].block)
		if !header.IsMarked() {
			header.SetMarked(true)
			newlyMarked++
		}
	}

	rootWords, err := c.scanRoots(mark)
	if err != nil {
		return cycle, err
	}
	cycle.RootWords = rootWords
	cycle.RootMarked = newlyMarked
	cycle.Marked = newlyMarked

	for {
		cycle.Passes++
		newlyMarked = 0

		for _, s := range index.spans {
			if c.directory.Header(s.block).IsMarked() {
				c.directory.Payload(s.block).VisitWords(mark)
			}
		}

		cycle.Marked += newlyMarked
		if newlyMarked == 0 {
			break
		}
	}

	for _, s := range index.spans {
		header := c.directory.Header(s.block)
		if header.IsFree() || header.IsMarked() {
			continue
		}

		header.MarkFreed()
		memutils.DebugFillRegion(c.directory.Payload(s.block), memutils.DestroyedFillPattern)

		cycle.Reclaimed++
		cycle.ReclaimedBytes += int(header.Size)
	}

	c.stats.Add(cycle)
	c.logger.LogAttrs(context.Background(), slog.LevelDebug, "Collector::Run",
		slog.Int("Cycle", cycle.Cycle),
		slog.Int("RootWords", cycle.RootWords),
		slog.Int("Passes", cycle.Passes),
		slog.Int("Marked", cycle.Marked),
		slog.Int("Reclaimed", cycle.Reclaimed),
		slog.Int("ReclaimedBytes", cycle.ReclaimedBytes),
	)

	return cycle, nil
}

func (c *Collector) scanRoots(mark func(addr uintptr, word uintptr)) (int, error) {
	words := 0

	if c.static != nil {
		start, end := c.static.StaticBounds()
		if start < end {
			region, err := c.static.Region(start, end)
			if err != nil {
				return words, errors.Wrap(err, "failed to read the static segment")
			}
			words += region.VisitWords(mark)
		}
	}

	if c.stack != nil {
		boundary := c.stack.FrameBoundary()
		if boundary > c.origin {
			return words, errors.AssertionFailedf("frame boundary %#x is above the stack origin %#x", boundary, c.origin)
		}

		if boundary < c.origin {
			region, err := c.stack.Region(boundary, c.origin)
			if err != nil {
				return words, errors.Wrap(err, "failed to read the stack")
			}
			words += region.VisitWords(mark)
		}
	}

	return words, nil
}
