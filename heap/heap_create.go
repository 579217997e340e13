package heap

import (
	"fmt"
	"io"
	"math/bits"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/marksweep/gc"
	"github.com/vkngwrapper/marksweep/internal/arena"
	"github.com/vkngwrapper/marksweep/internal/utils"
	"github.com/vkngwrapper/marksweep/memutils/directory"
	"github.com/vkngwrapper/marksweep/roots"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags int32

const (
	// HeapCreateExternallySynchronized ensures that this heap will not be synchronized
	// internally. The consumer must guarantee it is used from only one goroutine at a time or is
	// synchronized by some other mechanism.
	HeapCreateExternallySynchronized CreateFlags = 1 << iota
	// HeapCreateCollectOnExhaustion runs a collection when the heap cannot be extended to satisfy
	// an Acquire, then retries the Acquire once against the reclaimed blocks. Root tracking must
	// have been initialized for the collection to run.
	HeapCreateCollectOnExhaustion
	// HeapCreateCoalesceAfterCollection merges adjacent free blocks at the end of every
	// collection. Without it, blocks reclaimed by a collection are only merged by a later
	// Release.
	HeapCreateCoalesceAfterCollection
)

var createFlagsMapping = map[CreateFlags]string{
	HeapCreateExternallySynchronized:  "HeapCreateExternallySynchronized",
	HeapCreateCollectOnExhaustion:     "HeapCreateCollectOnExhaustion",
	HeapCreateCoalesceAfterCollection: "HeapCreateCoalesceAfterCollection",
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for remaining := uint32(f); remaining != 0; remaining &= remaining - 1 {
		flag := CreateFlags(1 << bits.TrailingZeros32(remaining))
		name, ok := createFlagsMapping[flag]
		if !ok {
			name = fmt.Sprintf("CreateFlags(%#x)", uint32(flag))
		}
		names = append(names, name)
	}

	return strings.Join(names, "|")
}

const (
	// DefaultReserveBytes is the address range reserved for the heap when CreateOptions does
	// not provide one. It is equal to 64Mb.
	DefaultReserveBytes int = 64 * 1024 * 1024
)

// CreateOptions contains optional settings when creating a heap
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags

	// ReserveBytes is the address range reserved up front. The heap can never grow past it.
	// Defaults to DefaultReserveBytes.
	ReserveBytes int
	// MaxHeapBytes caps how much of the reservation the heap may use, headers included. Zero
	// means the whole reservation.
	MaxHeapBytes int
	// MinSplitSize is the smallest free remainder a reused block is split to leave behind.
	// Defaults to directory.DefaultMinSplitSize.
	MinSplitSize int

	// Stack is the call stack scanned for roots. It may be nil.
	Stack roots.StackIntrospector
	// Static is the static data segment scanned for roots. It may be nil.
	Static roots.StaticSegment

	// GrowCallbacks is an optional set of callbacks executed when the heap is extended or an
	// extension is refused
	GrowCallbacks *GrowCallbackOptions
}

// New creates a new Heap
//
// logger - Receives debug records for every heap operation. If nil, nothing is logged.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Heap, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if options.ReserveBytes < 0 || options.MaxHeapBytes < 0 || options.MinSplitSize < 0 {
		return nil, errors.Newf("heap sizes must not be negative: %+v", options)
	}

	reserve := options.ReserveBytes
	if reserve == 0 {
		reserve = DefaultReserveBytes
	}

	heap := &Heap{
		logger:      logger,
		createFlags: options.Flags,
		mutex: utils.OptionalMutex{
			UseMutex: options.Flags&HeapCreateExternallySynchronized == 0,
		},
	}

	memory, err := arena.New(arena.Options{
		ReserveBytes: reserve,
		LimitBytes:   options.MaxHeapBytes,
		Callbacks: &growCallbacks{
			Callbacks: options.GrowCallbacks,
			Heap:      heap,
		},
	})
	if err != nil {
		return nil, err
	}

	heap.memory = memory
	heap.blocks = directory.New(memory, options.MinSplitSize)
	heap.collector = gc.New(logger, heap.blocks, options.Stack, options.Static)

	logger.Debug("Heap::New",
		slog.String("Flags", options.Flags.String()),
		slog.Int("ReserveBytes", memory.Capacity()),
		slog.Int("LimitBytes", memory.Limit()),
		slog.Int("MinSplitSize", heap.blocks.MinSplitSize()),
	)

	return heap, nil
}
