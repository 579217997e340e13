package directory

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/marksweep/memutils"
	"golang.org/x/exp/slog"
)

var errLimitReached = errors.New("block limit reached")

// AddStatistics sums the directory's block counts into stats
func (d *Directory) AddStatistics(stats *memutils.Statistics) {
	_ = d.VisitAllBlocks(func(addr uintptr, header *BlockHeader) error {
		stats.BlockCount++
		stats.BlockBytes += HeaderSize + int(header.Size)

		if !header.IsFree() {
			stats.AllocationCount++
			stats.AllocationBytes += int(header.Size)
		}

		return nil
	})
}

// AddDetailedStatistics sums the directory's block counts and size ranges into stats
func (d *Directory) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	_ = d.VisitAllBlocks(func(addr uintptr, header *BlockHeader) error {
		stats.BlockCount++
		stats.BlockBytes += HeaderSize + int(header.Size)
		stats.HeaderBytes += HeaderSize

		if header.IsFree() {
			stats.AddUnusedRange(int(header.Size))
		} else {
			stats.AddAllocation(int(header.Size))
		}

		return nil
	})
}

// BlockJsonData populates a json object with summary information about the directory
func (d *Directory) BlockJsonData(json jwriter.ObjectState) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	d.AddDetailedStatistics(&stats)

	json.Name("TotalBytes").Int(stats.BlockBytes)
	json.Name("HeaderBytes").Int(stats.HeaderBytes)
	json.Name("UnusedBytes").Int(stats.BlockBytes - stats.HeaderBytes - stats.AllocationBytes)
	json.Name("Blocks").Int(stats.BlockCount)
	json.Name("Allocations").Int(stats.AllocationCount)
	json.Name("UnusedRanges").Int(stats.UnusedRangeCount)
}

// PrintDetailedMap appends one object per block to json, stopping after limit blocks when limit
// is positive. A block with a corrupt tag is written with its raw tag and ends the map. The
// number of blocks written is returned.
func (d *Directory) PrintDetailedMap(json *jwriter.ArrayState, limit int) int {
	written := 0

	_ = d.VisitAllBlocks(func(addr uintptr, header *BlockHeader) error {
		if limit > 0 && written >= limit {
			return errLimitReached
		}

		obj := json.Object()
		defer obj.End()

		obj.Name("Address").String(fmt.Sprintf("%#x", addr))
		obj.Name("Tag").String(header.Tag.String())
		if header.Tag.Valid() {
			obj.Name("Size").Int(int(header.Size))
			obj.Name("Free").Bool(header.IsFree())
			obj.Name("Marked").Bool(header.IsMarked())
		}

		written++
		return nil
	})

	return written
}

// DebugLogAllBlocks writes one debug record per block, stopping after limit blocks when limit is
// positive or at the first corrupt header
func (d *Directory) DebugLogAllBlocks(logger *slog.Logger, limit int) {
	ctx := context.Background()
	count := 0

	err := d.VisitAllBlocks(func(addr uintptr, header *BlockHeader) error {
		if limit > 0 && count >= limit {
			return errLimitReached
		}
		count++

		if !header.Tag.Valid() {
			logger.LogAttrs(ctx, slog.LevelError, "[CORRUPTED] block header",
				slog.String("address", fmt.Sprintf("%#x", addr)),
				slog.String("tag", header.Tag.String()),
			)
			return nil
		}

		logger.LogAttrs(ctx, slog.LevelDebug, "block",
			slog.String("address", fmt.Sprintf("%#x", addr)),
			slog.Uint64("size", header.Size),
			slog.Bool("free", header.IsFree()),
			slog.Bool("marked", header.IsMarked()),
			slog.String("tag", header.Tag.String()),
		)
		return nil
	})

	if errors.Is(err, errLimitReached) {
		logger.Debug("block listing truncated", slog.Int("limit", limit))
	}
}
