//go:build unix

package arena

import (
	"golang.org/x/sys/unix"
)

// reserve maps size bytes of private anonymous memory. The Go runtime neither scans nor moves
// it, which is what lets the heap store raw addresses inside.
func reserve(size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, err
	}

	return data, unix.Munmap, nil
}
