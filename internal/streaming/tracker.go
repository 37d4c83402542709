package streaming

import (
	"fmt"
	"sync/atomic"
)

// Status is the residency state of one sector.
type Status int32

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusLoaded
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "Uninitialized"
	case StatusLoading:
		return "Loading"
	case StatusLoaded:
		return "Loaded"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(s))
	}
}

// tracker is the per-sector cache entry. Each status transition has a
// single writer: the update goroutine moves Uninitialized -> Loading and
// evicts Loaded -> Uninitialized; the worker moves Loading -> Loaded or back
// to Uninitialized. data is stored before status flips to Loaded.
type tracker struct {
	status    atomic.Int32
	data      atomic.Pointer[[]uint16]
	lastFrame atomic.Uint64
	retryAt   atomic.Uint64
	failures  atomic.Int32

	// Owned by the update goroutine.
	inFrustum bool
	pending   bool
	hasRegion bool
}

func (t *tracker) Status() Status {
	return Status(t.status.Load())
}

func (t *tracker) transition(from, to Status) bool {
	return t.status.CompareAndSwap(int32(from), int32(to))
}

func (t *tracker) reset() {
	t.status.Store(int32(StatusUninitialized))
	t.data.Store(nil)
	t.lastFrame.Store(0)
	t.retryAt.Store(0)
	t.failures.Store(0)
	t.inFrustum = false
	t.pending = false
	t.hasRegion = false
}
