package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrInvalidSize is returned when an allocation is requested with a size of zero or less
	ErrInvalidSize = errors.New("allocation size must be positive")
	// ErrOutOfMemory is returned when the environment refuses to extend the heap
	ErrOutOfMemory = errors.New("heap extension denied")
	// ErrRootTrackingUninitialized is returned when a collection is requested before the stack
	// origin has been recorded
	ErrRootTrackingUninitialized = errors.New("root tracking has not been initialized")
	// ErrClosed is returned by heap operations after the heap has been closed
	ErrClosed = errors.New("heap is closed")

	// ErrDoubleRelease is carried by the panic raised when a block that is already free is released
	ErrDoubleRelease = errors.New("block is already free")
	// ErrCorruptHeader is carried by the panic raised when a block header fails its integrity check
	ErrCorruptHeader = errors.New("block header is corrupt")
	// ErrInvalidAddress is carried by the panic raised when an address does not belong to the heap
	ErrInvalidAddress = errors.New("address does not belong to the heap")
)
