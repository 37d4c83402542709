package streaming

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Faultbox/terrainer/pkg/blockpool"
	"github.com/Faultbox/terrainer/pkg/region"
)

// ProcessStats reports what one Process call did.
type ProcessStats struct {
	Frame     uint64
	Submitted int
	Dropped   int
	Evicted   int
}

// Process advances the frame counter and pumps I/O. Call it once per frame
// from the update goroutine after selection.
func (s *Storage) Process() ProcessStats {
	frame := s.frame.Add(1)
	st := ProcessStats{Frame: frame}
	if s.closed {
		return st
	}

	st.Evicted = s.evict(frame)
	if len(s.pending) == 0 {
		return st
	}

	reqs := make([]request, 0, len(s.pending))
	for _, idx := range s.pending {
		t := &s.trackers[idx]
		t.pending = false
		if t.Status() != StatusUninitialized {
			continue
		}
		s.nextID++
		sector := s.layout.SectorAt(idx)
		reqs = append(reqs, request{
			id:       s.nextID,
			sector:   sector,
			index:    idx,
			priority: s.priority(sector, t.inFrustum),
			types:    DataMinmax,
		})
	}
	s.pending = s.pending[:0]
	if len(reqs) == 0 {
		return st
	}

	sortRequests(reqs)
	s.startWorker()

	for i, req := range reqs {
		t := &s.trackers[req.index]
		if !t.transition(StatusUninitialized, StatusLoading) {
			continue
		}
		select {
		case s.queue <- req:
			st.Submitted++
		default:
			// Queue full: this and every lower-priority request is dropped
			// and will be asked for again next frame if still wanted.
			t.transition(StatusLoading, StatusUninitialized)
			st.Dropped = len(reqs) - i
		}
		if st.Dropped > 0 {
			break
		}
	}

	s.counters.submitted += uint64(st.Submitted)
	s.counters.dropped += uint64(st.Dropped)
	return st
}

// StopIO stops the worker and discards queued requests. A read already in
// progress completes first. The worker restarts on the next Process.
func (s *Storage) StopIO() {
	for _, idx := range s.pending {
		s.trackers[idx].pending = false
	}
	s.pending = s.pending[:0]

	if !s.running {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.running = false
	s.cancel = nil

	for {
		select {
		case req := <-s.queue:
			s.trackers[req.index].transition(StatusLoading, StatusUninitialized)
			s.results[ResultCancelled].Add(1)
		default:
			s.log.Debug("io stopped")
			return
		}
	}
}

func (s *Storage) startWorker() {
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	s.log.Debug("io worker started")
}

func (s *Storage) run(ctx context.Context) {
	w := &worker{s: s, cache: s.pool.NewCache(blockpool.DefaultCacheSize)}
	defer w.cache.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.queue:
			if ctx.Err() != nil {
				s.trackers[req.index].transition(StatusLoading, StatusUninitialized)
				s.results[ResultCancelled].Add(1)
				return
			}
			res := w.handle(req)
			s.results[res].Add(1)
		}
	}
}

// worker holds state private to the I/O goroutine.
type worker struct {
	s     *Storage
	cache *blockpool.Cache[uint16]
	block regionBlock
}

func (w *worker) handle(req request) Result {
	s := w.s
	t := &s.trackers[req.index]

	if s.stale(t) {
		t.transition(StatusLoading, StatusUninitialized)
		s.log.Debug("request cancelled before read", zap.Stringer("sector", req.sector), zap.Uint64("id", req.id))
		return ResultCancelled
	}

	buf := w.cache.Allocate()
	if buf == nil {
		s.pressure.Store(true)
		t.transition(StatusLoading, StatusUninitialized)
		s.log.Debug("minmax pool exhausted", zap.Stringer("sector", req.sector))
		return ResultOutOfMemory
	}

	if err := w.readSector(req.sector, buf); err != nil {
		w.cache.Free(buf)
		failures := t.failures.Add(1)
		t.retryAt.Store(s.frame.Load() + s.cfg.RetryBackoffFrames)
		t.transition(StatusLoading, StatusUninitialized)

		res := classify(err)
		s.log.Warn("sector load failed",
			zap.Stringer("sector", req.sector),
			zap.Stringer("result", res),
			zap.Int32("failures", failures),
			zap.Error(err))
		return res
	}

	if s.stale(t) {
		w.cache.Free(buf)
		t.transition(StatusLoading, StatusUninitialized)
		s.log.Debug("request cancelled after read", zap.Stringer("sector", req.sector), zap.Uint64("id", req.id))
		return ResultCancelled
	}

	t.data.Store(&buf)
	t.failures.Store(0)
	t.transition(StatusLoading, StatusLoaded)
	s.log.Debug("sector loaded", zap.Stringer("sector", req.sector), zap.Float32("priority", req.priority))
	return ResultOK
}

// stale reports whether the sector went untouched for more than
// StaleFrames frames.
func (s *Storage) stale(t *tracker) bool {
	if s.cfg.StaleFrames == 0 {
		return false
	}
	frame, last := s.frame.Load(), t.lastFrame.Load()
	return frame > last && frame-last > s.cfg.StaleFrames
}

func classify(err error) Result {
	switch {
	case errors.Is(err, errRegionMismatch),
		errors.Is(err, region.ErrTruncated),
		errors.Is(err, region.ErrNoMinmax),
		errors.Is(err, region.ErrInvalidGeometry):
		return ResultFormatError
	default:
		return ResultIOError
	}
}
