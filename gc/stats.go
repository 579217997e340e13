package gc

// CycleStats describes a single collection
type CycleStats struct {
	// Cycle is the 1-based number of this collection
	Cycle int
	// RootWords is the number of static and stack words examined as candidate addresses
	RootWords int
	// RootMarked is the number of blocks marked directly from the roots
	RootMarked int
	// Passes is the number of closure passes over marked payloads, including the final pass
	// that found nothing new
	Passes int
	// Marked is the number of blocks found reachable
	Marked int
	// Reclaimed is the number of live blocks the sweep returned to the free state
	Reclaimed int
	// ReclaimedBytes is the payload size of the reclaimed blocks
	ReclaimedBytes int
}

// Stats accumulates CycleStats over the lifetime of a Collector
type Stats struct {
	Collections    int
	Marked         int
	Reclaimed      int
	ReclaimedBytes int
}

func (s *Stats) Add(stats CycleStats) {
	s.Collections++
	s.Marked += stats.Marked
	s.Reclaimed += stats.Reclaimed
	s.ReclaimedBytes += stats.ReclaimedBytes
}
