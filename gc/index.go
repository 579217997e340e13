package gc

import (
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/marksweep/memutils/directory"
	"golang.org/x/exp/slices"
)

// pageShift sets the granularity of the candidate index: one table entry per 4KiB of heap
const pageShift = 12

type span struct {
	block   uintptr
	payload uintptr
	end     uintptr
}

// candidateIndex answers "which block's payload contains this address" for the duration of one
// collection. Every block, free or not, has a span. The page table maps each page of heap
// address space to the spans overlapping it, in ascending address order, so a lookup only
// searches the handful of blocks sharing the candidate's page.
type candidateIndex struct {
	pages *swiss.Map[uintptr, []int]
	spans []span
}

func buildIndex(d *directory.Directory) (*candidateIndex, error) {
	var spans []span

	err := d.VisitAllBlocks(func(addr uintptr, header *directory.BlockHeader) error {
		payload := directory.PayloadOf(addr)
		spans = append(spans, span{
			block:   addr,
			payload: payload,
			end:     payload + uintptr(header.Size),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	pageCount := 0
	if len(spans) > 0 {
		pageCount = int((spans[len(spans)-1].end-1)>>pageShift-spans[0].payload>>pageShift) + 1
	}

	pages := swiss.NewMap[uintptr, []int](uint32(pageCount))
	for i, s := range spans {
		for page := s.payload >> pageShift; page <= (s.end-1)>>pageShift; page++ {
			entries, _ := pages.Get(page)
			pages.Put(page, append(entries, i))
		}
	}

	return &candidateIndex{pages: pages, spans: spans}, nil
}

// lookup returns the index of the span containing candidate
func (i *candidateIndex) lookup(candidate uintptr) (int, bool) {
	entries, ok := i.pages.Get(candidate >> pageShift)
	if !ok {
		return -1, false
	}

	at, found := slices.BinarySearchFunc(entries, candidate, func(index int, target uintptr) int {
		s := i.spans[index]
		if s.end <= target {
			return -1
		}
		if s.payload > target {
			return 1
		}
		return 0
	})
	if !found {
		return -1, false
	}

	return entries[at], true
}
