package heap

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/marksweep/memutils"
	"github.com/vkngwrapper/marksweep/memutils/directory"
	"golang.org/x/exp/slog"
)

// BlockInfo describes one block of the heap as VisitBlocks sees it
type BlockInfo struct {
	// Address is the address of the block header; the payload follows it
	Address uintptr
	Size    int
	Free    bool
	Marked  bool
	Tag     directory.Tag
}

// VisitBlocks calls visit for every block in address order. A block whose tag is corrupt is
// still visited, after which the walk stops with an error wrapping memutils.ErrCorruptHeader.
func (h *Heap) VisitBlocks(visit func(block BlockInfo) error) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.memory == nil {
		return memutils.ErrClosed
	}

	return h.blocks.VisitAllBlocks(func(addr uintptr, header *directory.BlockHeader) error {
		return visit(BlockInfo{
			Address: addr,
			Size:    int(header.Size),
			Free:    header.IsFree(),
			Marked:  header.IsMarked(),
			Tag:     header.Tag,
		})
	})
}

// PrintDetailedMap writes a JSON object describing the heap to writer: arena bounds, totals,
// counters and, when limit is not negative, a map of up to limit blocks (every block if limit
// is 0).
func (h *Heap) PrintDetailedMap(writer *jwriter.Writer, limit int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.printDetailedMap(writer, limit)
}

func (h *Heap) printDetailedMap(writer *jwriter.Writer, limit int) {
	obj := writer.Object()
	defer obj.End()

	if h.memory == nil {
		obj.Name("Closed").Bool(true)
		return
	}

	obj.Name("Base").String(fmt.Sprintf("%#x", h.memory.Base()))
	obj.Name("Break").String(fmt.Sprintf("%#x", h.memory.Break()))
	obj.Name("LimitBytes").Int(h.memory.Limit())
	h.blocks.BlockJsonData(obj)

	counters := obj.Name("Counters").Object()
	counters.Name("Acquires").Int(h.counters.Acquires)
	counters.Name("Releases").Int(h.counters.Releases)
	counters.Name("Resizes").Int(h.counters.Resizes)
	counters.Name("Collections").Int(h.counters.Collections)
	counters.Name("BlocksReclaimed").Int(h.counters.BlocksReclaimed)
	counters.Name("BytesReclaimed").Int(h.counters.BytesReclaimed)
	counters.Name("Extensions").Int(h.counters.Extensions)
	counters.Name("ExtensionsDenied").Int(h.counters.ExtensionsDenied)
	counters.End()

	if limit >= 0 {
		blockMap := obj.Name("Map").Array()
		h.blocks.PrintDetailedMap(&blockMap, limit)
		blockMap.End()
	}
}

// BuildStatsString returns the heap description written by PrintDetailedMap. The block map is
// only included when detailedMap is true.
func (h *Heap) BuildStatsString(detailedMap bool) string {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	limit := -1
	if detailedMap {
		limit = 0
	}

	writer := jwriter.NewWriter()
	h.printDetailedMap(&writer, limit)

	return string(writer.Bytes())
}

// DebugLogHeap logs the live and free counts followed by one record per block, stopping after
// limit blocks when limit is positive
func (h *Heap) DebugLogHeap(limit int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.memory == nil {
		h.logger.Debug("Heap::DebugLogHeap on a closed heap")
		return
	}

	h.logger.Debug("Heap::DebugLogHeap",
		slog.Int("Live", h.blocks.LiveCount()),
		slog.Int("Free", h.blocks.FreeCount()),
		slog.Int("UsedBytes", h.memory.Used()),
	)
	h.blocks.DebugLogAllBlocks(h.logger, limit)
}
