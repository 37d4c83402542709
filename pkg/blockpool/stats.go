package blockpool

// Stats is a best-effort snapshot of pool usage. Counters are read
// independently without synchronisation, so they are for diagnostics only.
type Stats struct {
	BlockCount  int
	BlockBytes  int
	Allocated   int
	Free        int
	Peak        int
	TotalAllocs uint64
	TotalFrees  uint64
}

// Utilization returns the fraction of blocks in use.
func (s Stats) Utilization() float32 {
	if s.BlockCount == 0 {
		return 0
	}
	return float32(s.Allocated) / float32(s.BlockCount)
}

// Stats returns the current counters.
func (p *Pool[T]) Stats() Stats {
	allocated := int(p.allocated.Load())
	return Stats{
		BlockCount:  p.blockCount,
		BlockBytes:  int(p.blockBytes),
		Allocated:   allocated,
		Free:        p.blockCount - allocated,
		Peak:        int(p.peak.Load()),
		TotalAllocs: p.totalAllocs.Load(),
		TotalFrees:  p.totalFrees.Load(),
	}
}

// AllocatedCount returns the number of blocks handed out.
func (p *Pool[T]) AllocatedCount() int {
	return int(p.allocated.Load())
}

// FreeCount returns the number of blocks not handed out. Blocks parked in a
// Cache count as free.
func (p *Pool[T]) FreeCount() int {
	return p.blockCount - int(p.allocated.Load())
}
