// Package workload drives a heap from a JSON script of named allocations. Every name is a root:
// it occupies a slot on a shadow stack frame, or a global slot, for as long as it holds an
// address, so dropping a name is what makes its block unreachable.
package workload

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
)

// Op identifies what a Step does
type Op string

const (
	// OpAcquire allocates Size bytes and binds the address to Name
	OpAcquire Op = "acquire"
	// OpRelease releases the block bound to Name and unbinds it
	OpRelease Op = "release"
	// OpResize resizes the block bound to Name to Size bytes and rebinds Name to the result
	OpResize Op = "resize"
	// OpDrop unbinds Name without releasing anything
	OpDrop Op = "drop"
	// OpStore writes the address bound to Name into word Index of the payload bound to Target.
	// An empty Name stores 0.
	OpStore Op = "store"
	// OpCollect runs a collection
	OpCollect Op = "collect"
	// OpDump reports the heap contents
	OpDump Op = "dump"
	// OpExpect checks the live and free block counts
	OpExpect Op = "expect"
)

var validOps = map[Op]struct{}{
	OpAcquire: {},
	OpRelease: {},
	OpResize:  {},
	OpDrop:    {},
	OpStore:   {},
	OpCollect: {},
	OpDump:    {},
	OpExpect:  {},
}

// Step is one instruction of a Script
type Step struct {
	Op     Op
	Name   string
	Target string
	Index  int
	Size   int
	// Global binds a newly acquired name to a static slot instead of a stack slot
	Global bool

	// Live and Free are checked by OpExpect when set
	Live *int
	Free *int
}

// Script is a named sequence of steps
type Script struct {
	Name        string
	Description string
	Steps       []Step
}

// Parse reads a script document:
//
//	{"name": "...", "description": "...", "steps": [{"op": "acquire", "name": "a", "size": 20}, ...]}
func Parse(data []byte) (*Script, error) {
	r := jreader.NewReader(data)
	script := &Script{}

	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "name":
			script.Name = r.String()
		case "description":
			script.Description = r.String()
		case "steps":
			for arr := r.Array(); arr.Next(); {
				script.Steps = append(script.Steps, readStep(&r))
			}
		default:
			_ = r.SkipValue()
		}
	}

	err := r.Error()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse workload script")
	}

	for i, step := range script.Steps {
		err = step.validate()
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
	}

	return script, nil
}

func readStep(r *jreader.Reader) Step {
	var step Step

	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "op":
			step.Op = Op(r.String())
		case "name":
			step.Name = r.String()
		case "target":
			step.Target = r.String()
		case "index":
			step.Index = r.Int()
		case "size":
			step.Size = r.Int()
		case "global":
			step.Global = r.Bool()
		case "live":
			live := r.Int()
			step.Live = &live
		case "free":
			free := r.Int()
			step.Free = &free
		default:
			_ = r.SkipValue()
		}
	}

	return step
}

func (s Step) validate() error {
	if _, ok := validOps[s.Op]; !ok {
		return errors.Newf("unknown op %q", s.Op)
	}

	switch s.Op {
	case OpAcquire, OpRelease, OpResize, OpDrop:
		if s.Name == "" {
			return errors.Newf("%s needs a name", s.Op)
		}
	case OpStore:
		if s.Target == "" {
			return errors.New("store needs a target")
		}
		if s.Index < 0 {
			return errors.Newf("store index %d is negative", s.Index)
		}
	case OpExpect:
		if s.Live == nil && s.Free == nil {
			return errors.New("expect needs live or free")
		}
	}

	return nil
}
