package main

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/marksweep/gc"
	"github.com/vkngwrapper/marksweep/heap"
	"github.com/vkngwrapper/marksweep/memutils"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

var errDumpLimit = errors.New("dump limit reached")

func printStats(w io.Writer, h *heap.Heap) {
	printer.Fprintf(w, "  [Allocated: %d blocks | Free: %d blocks | Heap: %d bytes]\n", h.LiveCount(), h.FreeCount(), h.Used())
}

func printCollection(w io.Writer, stats gc.CycleStats) {
	printer.Fprintf(w, "  Collection %d: %d root words, %d passes, %d marked, %d reclaimed (%d bytes)\n",
		stats.Cycle, stats.RootWords, stats.Passes, stats.Marked, stats.Reclaimed, stats.ReclaimedBytes)
}

func printCounters(w io.Writer, h *heap.Heap) {
	counters := h.Counters()
	printer.Fprintf(w, "  %d acquires, %d releases, %d resizes, %d collections, %d blocks reclaimed, %d bytes reclaimed\n",
		counters.Acquires, counters.Releases, counters.Resizes, counters.Collections, counters.BlocksReclaimed, counters.BytesReclaimed)
}

func printDump(w io.Writer, h *heap.Heap) error {
	if jsonOut {
		writer := jwriter.NewStreamingWriter(w, 4096)
		h.PrintDetailedMap(&writer, dumpLimit)
		err := writer.Flush()
		if err != nil {
			return err
		}

		fmt.Fprintln(w)
		return writer.Error()
	}

	fmt.Fprintln(w, "\n[HEAP DUMP]")
	fmt.Fprintf(w, "%-18s %-8s %-6s %-8s %-10s\n", "Address", "Size", "Free", "Marked", "Tag")

	count := 0
	err := h.VisitBlocks(func(block heap.BlockInfo) error {
		if dumpLimit > 0 && count >= dumpLimit {
			return errDumpLimit
		}
		count++

		address := fmt.Sprintf("%#x", block.Address)
		if !block.Tag.Valid() {
			fmt.Fprintf(w, "%-18s [CORRUPTED - tag: %s]\n", address, block.Tag)
			return nil
		}

		printer.Fprintf(w, "%-18s %-8d %-6t %-8t %-10s\n", address, block.Size, block.Free, block.Marked, block.Tag)
		return nil
	})

	switch {
	case errors.Is(err, errDumpLimit):
		fmt.Fprintf(w, "  (stopped after %d blocks)\n", dumpLimit)
	case errors.Is(err, memutils.ErrCorruptHeader):
		// Already reported on the corrupt block's row
	case err != nil:
		return err
	}

	fmt.Fprintln(w, "----------------------------------------")
	return nil
}
