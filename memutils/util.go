package memutils

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
)

// WordSize is the size in bytes of a machine word, the unit in which conservative scans
// read candidate addresses
const WordSize = int(unsafe.Sizeof(uintptr(0)))

// SizeAlignment is the granularity that every payload size is rounded up to
const SizeAlignment uint = 8

type Number interface {
	~int | ~uint | ~uintptr
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to a multiple of alignment, which must be a power of two
func AlignUp[T Number](value T, alignment uint) T {
	DebugCheckPow2(alignment, "alignment")
	return (value + T(alignment) - 1) &^ (T(alignment) - 1)
}

// AlignDown rounds value down to a multiple of alignment, which must be a power of two
func AlignDown[T Number](value T, alignment uint) T {
	DebugCheckPow2(alignment, "alignment")
	return value &^ (T(alignment) - 1)
}
