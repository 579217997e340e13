// Package roots provides the memory regions a conservative collector scans for root references:
// a call stack and a static data segment. Both live in raw memory outside the Go heap so that
// every word in them can be read as a candidate address.
package roots

import "github.com/vkngwrapper/marksweep/memutils"

//go:generate mockgen -source roots.go -destination mocks/roots.go

// StackIntrospector exposes a downward-growing call stack. The region between the current frame
// boundary and the stack origin holds every live frame.
type StackIntrospector interface {
	// StackOrigin returns the highest address of the stack. It is queried once, when root
	// tracking is initialized.
	StackOrigin() (uintptr, error)
	// FrameBoundary returns the lowest address of the innermost live frame. It is queried at
	// the start of every collection.
	FrameBoundary() uintptr
	// Region returns the stack memory in [start, end)
	Region(start, end uintptr) (memutils.Region, error)
}

// StaticSegment exposes the bounds of the static data region, as a loader would
type StaticSegment interface {
	StaticBounds() (start, end uintptr)
	// Region returns the static memory in [start, end)
	Region(start, end uintptr) (memutils.Region, error)
}
