package streaming

import "github.com/Faultbox/terrainer/pkg/blockpool"

// Stats is a snapshot of storage activity.
type Stats struct {
	Frame   uint64
	Regions int
	Loaded  int
	Loading int
	Pending int

	Submitted uint64
	Dropped   uint64
	Evicted   uint64
	Results   map[Result]uint64

	Pool blockpool.Stats
}

// Stats returns current counters. Worker results are read without
// synchronisation with the worker.
func (s *Storage) Stats() Stats {
	st := Stats{
		Frame:     s.frame.Load(),
		Regions:   s.nregions,
		Pending:   len(s.pending),
		Submitted: s.counters.submitted,
		Dropped:   s.counters.dropped,
		Evicted:   s.counters.evicted,
		Results:   make(map[Result]uint64, resultCount),
		Pool:      s.pool.Stats(),
	}
	for i := range s.trackers {
		switch s.trackers[i].Status() {
		case StatusLoaded:
			st.Loaded++
		case StatusLoading:
			st.Loading++
		}
	}
	for r := Result(0); r < resultCount; r++ {
		st.Results[r] = s.results[r].Load()
	}
	return st
}
