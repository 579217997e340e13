package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/vkngwrapper/marksweep/heap"
	"github.com/vkngwrapper/marksweep/roots"
	"golang.org/x/exp/slog"
)

var (
	// Global flags
	verbose                 bool
	jsonOut                 bool
	reserveBytes            int
	maxHeapBytes            int
	dumpLimit               int
	collectOnExhaustion     bool
	coalesceAfterCollection bool
	globalSlots             int
)

var rootCmd = &cobra.Command{
	Use:   "gcdemo",
	Short: "Drive a conservative mark-and-sweep heap",
	Long: `gcdemo runs allocation workloads against a self-hosted heap with a conservative
mark-and-sweep collector and reports the state of the heap as it goes. Workloads are either the
built-in demonstration or JSON scripts of named allocations.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every heap operation to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Write heap dumps as JSON")
	rootCmd.PersistentFlags().IntVar(&reserveBytes, "reserve", heap.DefaultReserveBytes, "Address range reserved for the heap, in bytes")
	rootCmd.PersistentFlags().IntVar(&maxHeapBytes, "max-heap", 0, "Most bytes the heap may grow to, 0 for the whole reservation")
	rootCmd.PersistentFlags().IntVar(&dumpLimit, "dump-limit", 20, "Most blocks shown by a heap dump, 0 for all")
	rootCmd.PersistentFlags().BoolVar(&collectOnExhaustion, "collect-on-exhaustion", false, "Collect and retry when the heap cannot grow")
	rootCmd.PersistentFlags().BoolVar(&coalesceAfterCollection, "coalesce-after-collection", false, "Merge adjacent free blocks after every collection")
	rootCmd.PersistentFlags().IntVar(&globalSlots, "globals", 16, "Number of global root slots")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// environment is a heap together with the roots it is scanned from
type environment struct {
	logger  *slog.Logger
	heap    *heap.Heap
	stack   *roots.ShadowStack
	globals *roots.Globals
}

func newLogger(w io.Writer) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func createFlags() heap.CreateFlags {
	// The demo is single threaded
	flags := heap.HeapCreateExternallySynchronized
	if collectOnExhaustion {
		flags |= heap.HeapCreateCollectOnExhaustion
	}
	if coalesceAfterCollection {
		flags |= heap.HeapCreateCoalesceAfterCollection
	}
	return flags
}

func newEnvironment(cmd *cobra.Command) (*environment, error) {
	logger := newLogger(cmd.ErrOrStderr())

	stack, err := roots.NewShadowStack(0)
	if err != nil {
		return nil, err
	}

	globals, err := roots.NewGlobals(globalSlots)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}

	h, err := heap.New(logger, heap.CreateOptions{
		Flags:        createFlags(),
		ReserveBytes: reserveBytes,
		MaxHeapBytes: maxHeapBytes,
		Stack:        stack,
		Static:       globals,
	})
	if err != nil {
		_ = stack.Close()
		_ = globals.Close()
		return nil, err
	}

	err = h.InitializeRootTracking()
	if err != nil {
		env := &environment{heap: h, stack: stack, globals: globals}
		_ = env.Close()
		return nil, err
	}

	origin, _ := stack.StackOrigin()
	printVerbose(cmd, "Root tracking initialized (stack origin: %#x)\n", origin)

	return &environment{
		logger:  logger,
		heap:    h,
		stack:   stack,
		globals: globals,
	}, nil
}

func (e *environment) Close() error {
	err := e.heap.Close()
	if stackErr := e.stack.Close(); err == nil {
		err = stackErr
	}
	if globalsErr := e.globals.Close(); err == nil {
		err = globalsErr
	}
	return err
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(cmd *cobra.Command, format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}
