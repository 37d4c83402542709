package streaming

import (
	"cmp"
	"slices"

	"go.uber.org/zap"
)

// evict frees least recently touched sectors when the pool runs low or the
// worker reported exhaustion. Only sectors idle for EvictMinIdleFrames are
// candidates. It runs on the update goroutine, so no selection can be
// reading a buffer while it is freed.
func (s *Storage) evict(frame uint64) int {
	pressure := s.pressure.Swap(false)
	need := s.cfg.EvictLowWater - s.pool.FreeCount()
	if pressure && need < 1 {
		need = 1
	}
	if need <= 0 {
		return 0
	}

	var candidates []int
	for i := range s.trackers {
		t := &s.trackers[i]
		if t.Status() != StatusLoaded {
			continue
		}
		last := t.lastFrame.Load()
		if frame >= last && frame-last < s.cfg.EvictMinIdleFrames {
			continue
		}
		candidates = append(candidates, i)
	}
	slices.SortFunc(candidates, func(a, b int) int {
		return cmp.Compare(s.trackers[a].lastFrame.Load(), s.trackers[b].lastFrame.Load())
	})

	evicted := 0
	for _, idx := range candidates {
		if evicted >= need {
			break
		}
		if s.evictSector(idx) {
			evicted++
		}
	}

	if evicted > 0 {
		s.counters.evicted += uint64(evicted)
		s.log.Debug("evicted sectors",
			zap.Int("count", evicted),
			zap.Int("free", s.pool.FreeCount()),
			zap.Bool("pressure", pressure))
	}
	return evicted
}

func (s *Storage) evictSector(idx int) bool {
	t := &s.trackers[idx]
	if !t.transition(StatusLoaded, StatusUninitialized) {
		return false
	}
	if data := t.data.Swap(nil); data != nil {
		s.pool.Free(*data)
	}
	return true
}

func (s *Storage) evictAll() {
	for i := range s.trackers {
		s.evictSector(i)
	}
}
