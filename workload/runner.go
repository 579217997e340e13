package workload

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/marksweep/gc"
	"github.com/vkngwrapper/marksweep/heap"
	"github.com/vkngwrapper/marksweep/memutils"
	"github.com/vkngwrapper/marksweep/roots"
	"golang.org/x/exp/slog"
)

// ErrExpectationFailed is returned when an expect step finds different block counts
var ErrExpectationFailed = errors.New("workload expectation failed")

// DefaultFrameSlots is the number of stack-bound names a Runner can hold when Options does not
// say otherwise
const DefaultFrameSlots = 64

type binding struct {
	global bool
	slot   int
}

// Options configure a Runner
type Options struct {
	// FrameSlots is the number of names that can be bound to the stack frame at once. Defaults
	// to DefaultFrameSlots.
	FrameSlots int
	// OnDump is called for every dump step. If nil, dump steps log the heap instead.
	OnDump func(step int, h *heap.Heap)
}

// Result summarizes a completed script
type Result struct {
	Steps       int
	Collections []gc.CycleStats
}

// Runner executes scripts against a heap. Names bound by acquire steps live in a single frame
// pushed on the stack when the runner is created, or in the globals.
type Runner struct {
	logger  *slog.Logger
	heap    *heap.Heap
	stack   *roots.ShadowStack
	globals *roots.Globals
	frame   *roots.Frame
	onDump  func(step int, h *heap.Heap)

	bindings    map[string]binding
	freeFrame   []int
	freeGlobals []int
}

// NewRunner pushes a frame for the script's names onto stack. The heap must have been created
// with stack and globals as its roots.
func NewRunner(logger *slog.Logger, h *heap.Heap, stack *roots.ShadowStack, globals *roots.Globals, options Options) (*Runner, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	slots := options.FrameSlots
	if slots == 0 {
		slots = DefaultFrameSlots
	}

	frame, err := stack.PushFrame(slots)
	if err != nil {
		return nil, err
	}

	runner := &Runner{
		logger:   logger,
		heap:     h,
		stack:    stack,
		globals:  globals,
		frame:    frame,
		onDump:   options.OnDump,
		bindings: make(map[string]binding),
	}

	for i := slots - 1; i >= 0; i-- {
		runner.freeFrame = append(runner.freeFrame, i)
	}
	if globals != nil {
		for i := globals.Slots() - 1; i >= 0; i-- {
			runner.freeGlobals = append(runner.freeGlobals, i)
		}
	}

	return runner, nil
}

// Close pops the runner's frame, dropping every stack-bound name
func (r *Runner) Close() error {
	for name, b := range r.bindings {
		if b.global {
			r.globals.Clear(b.slot)
		}
		delete(r.bindings, name)
	}

	return r.stack.PopFrame()
}

// Lookup returns the address bound to name
func (r *Runner) Lookup(name string) (uintptr, bool) {
	b, ok := r.bindings[name]
	if !ok {
		return 0, false
	}

	return r.get(b), true
}

func (r *Runner) get(b binding) uintptr {
	if b.global {
		return r.globals.Get(b.slot)
	}
	return r.frame.Get(b.slot)
}

func (r *Runner) set(b binding, value uintptr) {
	if b.global {
		r.globals.Set(b.slot, value)
	} else {
		r.frame.Set(b.slot, value)
	}
}

func (r *Runner) bind(name string, global bool, value uintptr) error {
	b, ok := r.bindings[name]
	if !ok {
		free := &r.freeFrame
		if global {
			free = &r.freeGlobals
		}
		if len(*free) == 0 {
			return errors.Newf("no free slot to bind %q", name)
		}

		b = binding{global: global, slot: (*free)[len(*free)-1]}
		*free = (*free)[:len(*free)-1]
		r.bindings[name] = b
	}

	r.set(b, value)
	return nil
}

func (r *Runner) unbind(name string) {
	b, ok := r.bindings[name]
	if !ok {
		return
	}

	r.set(b, 0)
	delete(r.bindings, name)
	if b.global {
		r.freeGlobals = append(r.freeGlobals, b.slot)
	} else {
		r.freeFrame = append(r.freeFrame, b.slot)
	}
}

func (r *Runner) lookup(name string) (uintptr, error) {
	ptr, ok := r.Lookup(name)
	if !ok {
		return 0, errors.Newf("%q is not bound", name)
	}
	return ptr, nil
}

// Run executes every step of script in order and stops at the first failure
func (r *Runner) Run(script *Script) (Result, error) {
	result := Result{}

	for i, step := range script.Steps {
		err := r.runStep(i, step, &result)
		if err != nil {
			return result, errors.Wrapf(err, "%s: step %d (%s %s)", script.Name, i, step.Op, step.Name)
		}
		result.Steps++
	}

	return result, nil
}

func (r *Runner) runStep(index int, step Step, result *Result) error {
	switch step.Op {
	case OpAcquire:
		ptr, err := r.heap.Acquire(step.Size)
		if err != nil {
			return err
		}
		r.unbind(step.Name)
		return r.bind(step.Name, step.Global, ptr)

	case OpRelease:
		ptr, err := r.lookup(step.Name)
		if err != nil {
			return err
		}
		r.heap.Release(ptr)
		r.unbind(step.Name)

	case OpResize:
		ptr, err := r.lookup(step.Name)
		if err != nil {
			return err
		}
		b := r.bindings[step.Name]
		resized, err := r.heap.Resize(ptr, step.Size)
		if err != nil {
			return err
		}
		if resized == 0 {
			r.unbind(step.Name)
		} else {
			r.set(b, resized)
		}

	case OpDrop:
		if _, ok := r.bindings[step.Name]; !ok {
			return errors.Newf("%q is not bound", step.Name)
		}
		r.unbind(step.Name)

	case OpStore:
		target, err := r.lookup(step.Target)
		if err != nil {
			return err
		}

		var value uintptr
		if step.Name != "" {
			value, err = r.lookup(step.Name)
			if err != nil {
				return err
			}
		}

		payload := memutils.NewRegion(target, r.heap.Bytes(target))
		addr := target + uintptr(step.Index*memutils.WordSize)
		if addr+uintptr(memutils.WordSize) > payload.End() {
			return errors.Newf("word %d is outside the %d byte payload of %q", step.Index, len(payload.Data), step.Target)
		}
		payload.SetWord(addr, value)

	case OpCollect:
		stats, err := r.heap.RunCollection()
		if err != nil {
			return err
		}
		result.Collections = append(result.Collections, stats)

		// Every bound name is a root
		for name := range r.bindings {
			ptr, _ := r.Lookup(name)
			if !r.heap.IsLive(ptr) {
				return errors.AssertionFailedf("collection reclaimed %q at %#x while it was bound", name, ptr)
			}
		}

	case OpDump:
		if r.onDump != nil {
			r.onDump(index, r.heap)
		} else {
			r.heap.DebugLogHeap(0)
		}

	case OpExpect:
		live, free := r.heap.LiveCount(), r.heap.FreeCount()
		if (step.Live != nil && *step.Live != live) || (step.Free != nil && *step.Free != free) {
			return errors.Wrap(ErrExpectationFailed, describeExpectation(step, live, free))
		}
		r.logger.Debug("Workload::Expect", slog.Int("Live", live), slog.Int("Free", free))

	default:
		return errors.Newf("unknown op %q", step.Op)
	}

	return nil
}

func describeExpectation(step Step, live, free int) string {
	expected := func(value *int) string {
		if value == nil {
			return "any"
		}
		return fmt.Sprint(*value)
	}

	return fmt.Sprintf("expected %s live and %s free, found %d live and %d free", expected(step.Live), expected(step.Free), live, free)
}
