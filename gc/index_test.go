package gc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/marksweep/internal/arena"
	"github.com/vkngwrapper/marksweep/memutils/directory"
)

func TestCandidateIndexLookup(t *testing.T) {
	memory, err := arena.New(arena.Options{ReserveBytes: 4096})
	require.NoError(t, err)
	defer memory.Close()

	d := directory.New(memory, 0)
	a, err := d.Extend(16, 0)
	require.NoError(t, err)
	b, err := d.Extend(32, a)
	require.NoError(t, err)
	c, err := d.Extend(8, b)
	require.NoError(t, err)
	d.Header(b).MarkFreed()

	index, err := buildIndex(d)
	require.NoError(t, err)
	require.Len(t, index.spans, 3)
	require.Equal(t, 1, index.pages.Count())

	testCases := map[string]struct {
		Candidate uintptr
		Block     uintptr
		Found     bool
	}{
		"Null":             {Candidate: 0},
		"HeaderOfFirst":    {Candidate: a},
		"StartOfFirst":     {Candidate: directory.PayloadOf(a), Block: a, Found: true},
		"LastWordOfFirst":  {Candidate: directory.PayloadOf(a) + 8, Block: a, Found: true},
		"UnalignedInFirst": {Candidate: directory.PayloadOf(a) + 13, Block: a, Found: true},
		"FreeBlock":        {Candidate: directory.PayloadOf(b), Block: b, Found: true},
		"InsideFreeBlock":  {Candidate: directory.PayloadOf(b) + 16, Block: b, Found: true},
		"HeaderOfFree":     {Candidate: b + 8},
		"HeaderOfLast":     {Candidate: c + 8},
		"StartOfLast":      {Candidate: directory.PayloadOf(c), Block: c, Found: true},
		"PastTheEnd":       {Candidate: directory.PayloadOf(c) + 8},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			i, found := index.lookup(testCase.Candidate)
			require.Equal(t, testCase.Found, found)
			if found {
				require.Equal(t, testCase.Block, index.spans[i].block)
			}

			// Same answer as a linear range-membership search
			block, linearFound := d.Find(testCase.Candidate)
			require.Equal(t, linearFound, found)
			if found {
				require.Equal(t, block, index.spans[i].block)
			}
		})
	}
}

func TestCandidateIndexEmpty(t *testing.T) {
	memory, err := arena.New(arena.Options{ReserveBytes: 4096})
	require.NoError(t, err)
	defer memory.Close()

	index, err := buildIndex(directory.New(memory, 0))
	require.NoError(t, err)

	_, found := index.lookup(memory.Base())
	require.False(t, found)
}

func TestCandidateIndexAcrossPages(t *testing.T) {
	memory, err := arena.New(arena.Options{ReserveBytes: 1 << 16})
	require.NoError(t, err)
	defer memory.Close()

	// Blocks straddling page boundaries, one spanning several pages, and many sharing a page
	d := directory.New(memory, 0)
	var last uintptr
	for _, size := range []int{4000, 8, 24, 3 << pageShift, 16, 40, 5000, 8, 8, 8, 1000} {
		last, err = d.Extend(size, last)
		require.NoError(t, err)
	}

	index, err := buildIndex(d)
	require.NoError(t, err)
	require.Len(t, index.spans, 11)
	require.Greater(t, index.pages.Count(), 4)

	random := rand.New(rand.NewSource(42))
	for n := 0; n < 5000; n++ {
		candidate := memory.Base() - 64 + uintptr(random.Intn(memory.Used()+128))

		i, found := index.lookup(candidate)
		block, linearFound := d.Find(candidate)
		require.Equal(t, linearFound, found, "candidate %#x", candidate)
		if found {
			require.Equal(t, block, index.spans[i].block, "candidate %#x", candidate)
		}
	}
}
