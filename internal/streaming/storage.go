// Package streaming pages per-sector minmax pyramids from region files into
// a fixed block pool on a background worker.
//
// The update goroutine calls LoadMinmax for every sector it wants, then
// Process once per frame. Process ranks the pending requests, feeds the
// bounded worker queue and evicts idle sectors under memory pressure.
// IsSectorLoaded and GetMinmax never block. Apart from those two, Storage
// methods must be called from the update goroutine.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/syncmap"

	"github.com/Faultbox/terrainer/internal/logger"
	"github.com/Faultbox/terrainer/internal/terrain"
	"github.com/Faultbox/terrainer/pkg/blockpool"
	"github.com/Faultbox/terrainer/pkg/math"
	"github.com/Faultbox/terrainer/pkg/region"
)

// Storage errors.
var (
	ErrBadDirectory = errors.New("region directory is not usable")
	ErrClosed       = errors.New("storage is closed")
)

// Config holds storage settings. Frame counts refer to Process calls.
type Config struct {
	Dir    string
	Locked bool

	MapScale  math.Vec3
	MapOffset math.Vec3

	// RegionLODs is the persisted LOD count region files must carry. Zero
	// accepts any count.
	RegionLODs int

	QueueSize       int
	PoolBlocks      int
	ScanConcurrency int

	PredictionTime time.Duration
	KDistance      float32
	HalfDecay      float32
	FrustumBonus   float32
	HeadingBoost   float32

	// StaleFrames cancels a request whose sector has not been touched for
	// this many frames. Zero disables the check.
	StaleFrames        uint64
	RetryBackoffFrames uint64
	EvictLowWater      int
	EvictMinIdleFrames uint64
}

// DefaultConfig returns the default storage settings for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		MapScale:           math.Vec3{X: 1, Y: 1, Z: 1},
		QueueSize:          64,
		PoolBlocks:         256,
		ScanConcurrency:    4,
		PredictionTime:     500 * time.Millisecond,
		KDistance:          1000,
		HalfDecay:          512,
		FrustumBonus:       2,
		HeadingBoost:       1,
		StaleFrames:        120,
		RetryBackoffFrames: 60,
		EvictLowWater:      16,
		EvictMinIdleFrames: 30,
	}
}

// Option configures a Storage.
type Option func(*Storage)

// WithLogger sets the logger. The default is logger.Named("streaming").
func WithLogger(l *zap.Logger) Option {
	return func(s *Storage) {
		s.log = l
	}
}

// Storage is the streaming minmax store.
type Storage struct {
	cfg     Config
	layout  terrain.Layout
	pyramid terrain.PyramidShape
	log     *zap.Logger

	pool       *blockpool.Pool[uint16]
	trackers   []tracker
	regions    syncmap.Map // terrain.CellKey -> *region.Region
	nregions   int
	regionLODs int

	frame   atomic.Uint64
	pending []int
	nextID  uint64
	viewer  viewer

	queue   chan request
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	closed  bool

	pressure atomic.Bool
	results  [resultCount]atomic.Uint64
	counters counters
}

type counters struct {
	submitted uint64
	dropped   uint64
	evicted   uint64
}

// New creates a storage for the given world layout. Call LoadHeaders before
// requesting sectors.
func New(cfg Config, layout terrain.Layout, opts ...Option) (*Storage, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if cfg.QueueSize <= 0 || cfg.PoolBlocks <= 0 {
		return nil, fmt.Errorf("invalid storage config: queue size %d, pool blocks %d", cfg.QueueSize, cfg.PoolBlocks)
	}
	if cfg.HalfDecay <= 0 {
		return nil, fmt.Errorf("invalid storage config: half decay %v", cfg.HalfDecay)
	}
	if cfg.ScanConcurrency <= 0 {
		cfg.ScanConcurrency = 1
	}

	pyramid := layout.Pyramid()
	pool, err := blockpool.New[uint16](pyramid.Len(), cfg.PoolBlocks)
	if err != nil {
		return nil, fmt.Errorf("creating minmax pool: %w", err)
	}

	s := &Storage{
		cfg:      cfg,
		layout:   layout,
		pyramid:  pyramid,
		pool:     pool,
		trackers: make([]tracker, layout.SectorCount()),
		queue:    make(chan request, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("streaming")
	}
	return s, nil
}

// Layout returns the world layout.
func (s *Storage) Layout() terrain.Layout {
	return s.layout
}

// Frame returns the current frame counter.
func (s *Storage) Frame() uint64 {
	return s.frame.Load()
}

// RegionCount returns the number of regions accepted by the last scan.
func (s *Storage) RegionCount() int {
	return s.nregions
}

// HasRegion reports whether any region file backs the sector.
func (s *Storage) HasRegion(sector terrain.CellKey) bool {
	t := s.tracker(sector)
	return t != nil && t.hasRegion
}

// IsSectorLoaded reports whether the sector's pyramid is resident.
func (s *Storage) IsSectorLoaded(sector terrain.CellKey) bool {
	t := s.tracker(sector)
	return t != nil && t.Status() == StatusLoaded
}

// SectorStatus returns the residency state of a sector.
func (s *Storage) SectorStatus(sector terrain.CellKey) Status {
	t := s.tracker(sector)
	if t == nil {
		return StatusUninitialized
	}
	return t.Status()
}

// LoadMinmax marks the sector as wanted this frame and queues a load if it
// is not resident, loading, already pending, or backing off after a
// failure. Sectors without a backing region are never queued.
func (s *Storage) LoadMinmax(sector terrain.CellKey, inFrustum bool) {
	idx, ok := s.layout.SectorIndex(sector)
	if !ok || s.closed {
		return
	}
	t := &s.trackers[idx]
	frame := s.frame.Load()
	t.lastFrame.Store(frame)
	t.inFrustum = inFrustum

	if !t.hasRegion || t.pending || t.Status() != StatusUninitialized {
		return
	}
	if frame < t.retryAt.Load() {
		return
	}
	t.pending = true
	s.pending = append(s.pending, idx)
}

// GetMinmax returns the extrema of node key at lod. ok is false when the
// sector is not resident or the node is outside the pyramid.
func (s *Storage) GetMinmax(key terrain.NodeKey, lod int) (lo, hi uint16, ok bool) {
	t := s.tracker(key.Sector)
	if t == nil || t.Status() != StatusLoaded {
		return 0, 0, false
	}
	if lod < 0 || lod >= s.pyramid.Levels {
		return 0, 0, false
	}
	n := s.pyramid.LevelSize(lod)
	if int(key.Cell.X) >= n || int(key.Cell.Z) >= n {
		return 0, 0, false
	}
	data := t.data.Load()
	if data == nil {
		return 0, 0, false
	}
	lo, hi = s.pyramid.MinMax(*data, lod, int(key.Cell.X), int(key.Cell.Z))
	return lo, hi, true
}

// UpdateViewer records the viewer kinematics used for request priority.
// forward does not need to be normalised.
func (s *Storage) UpdateViewer(pos, vel, forward math.Vec3) {
	s.viewer = viewer{pos: pos, vel: vel, forward: forward, hasState: true}
}

// Clear stops I/O, evicts every resident sector and closes all regions.
func (s *Storage) Clear() {
	s.StopIO()
	s.evictAll()
	s.closeRegions()
	for i := range s.trackers {
		s.trackers[i].reset()
	}
}

// Close releases all resources. The storage cannot be reused.
func (s *Storage) Close() error {
	if s.closed {
		return nil
	}
	s.Clear()
	s.closed = true
	s.log.Debug("storage closed")
	return nil
}

func (s *Storage) tracker(sector terrain.CellKey) *tracker {
	idx, ok := s.layout.SectorIndex(sector)
	if !ok {
		return nil
	}
	return &s.trackers[idx]
}

func (s *Storage) region(key terrain.CellKey) *region.Region {
	v, ok := s.regions.Load(key)
	if !ok {
		return nil
	}
	return v.(*region.Region)
}

func (s *Storage) closeRegions() {
	s.regions.Range(func(k, v any) bool {
		if err := v.(*region.Region).Close(); err != nil {
			s.log.Warn("closing region", zap.String("file", v.(*region.Region).Path), zap.Error(err))
		}
		s.regions.Delete(k)
		return true
	})
	s.nregions = 0
	s.regionLODs = 0
}
