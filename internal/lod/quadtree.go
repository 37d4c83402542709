// Package lod selects terrain nodes with the CDLOD scheme.
//
// The world is cut into square sectors, each the root of an implicit
// quadtree whose leaves are single chunks. SetLODLevels derives the level
// count and a visibility range per level from the far view distance.
// Select walks the sectors around the viewer every frame and writes the
// coarsest set of nodes that covers the visible area into a fixed buffer.
package lod

import (
	"errors"
	"fmt"
	gomath "math"

	"go.uber.org/zap"

	"github.com/Faultbox/terrainer/internal/logger"
	"github.com/Faultbox/terrainer/internal/terrain"
	"github.com/Faultbox/terrainer/pkg/math"
)

const (
	// MaxSelection is the default selection buffer capacity.
	MaxSelection = 4096

	// DefaultMorphStartRatio is where morphing starts within a level's band.
	DefaultMorphStartRatio = 0.70

	lod0RadiusFactor = 1.42
	maxHeight        = gomath.MaxUint16
)

// ErrInvalidLevels is returned by SetLODLevels for unusable parameters.
var ErrInvalidLevels = errors.New("invalid LOD parameters")

// MinmaxSource provides per-node height extrema. IsSectorLoaded and
// GetMinmax must not block.
type MinmaxSource interface {
	IsSectorLoaded(sector terrain.CellKey) bool
	LoadMinmax(sector terrain.CellKey, inFrustum bool)
	GetMinmax(key terrain.NodeKey, lod int) (lo, hi uint16, ok bool)
}

// Config holds the world geometry seen by the selector.
type Config struct {
	ChunkSize       int       // height samples per chunk edge
	MapScale        math.Vec3 // world units per sample, Y per height unit
	MapOffset       math.Vec3
	WorldChunksX    int
	WorldChunksZ    int
	DistanceRatio   float32 // growth of the visibility radius per level, >= 1
	MorphStartRatio float32 // 0 selects DefaultMorphStartRatio
	Capacity        int     // 0 selects MaxSelection
}

// Option configures a QuadTree.
type Option func(*QuadTree)

// WithLogger sets the logger. The default is logger.Named("lod").
func WithLogger(l *zap.Logger) Option {
	return func(t *QuadTree) {
		t.log = l
	}
}

// QuadTree is the LOD selector. It is not safe for concurrent use.
type QuadTree struct {
	cfg Config
	log *zap.Logger

	levels       int
	sectorChunks int
	sectorsX     int
	sectorsZ     int
	ranges       [terrain.MaxLODLevels]float32
	morphStart   [terrain.MaxLODLevels]float32
	morphEnd     [terrain.MaxLODLevels]float32

	frustum   math.Frustum
	selection []Node
	perLevel  [terrain.MaxLODLevels]int
	minLOD    int
	maxLOD    int
}

// New creates a selector. SetLODLevels must be called before selecting.
func New(cfg Config, opts ...Option) *QuadTree {
	if cfg.MorphStartRatio <= 0 || cfg.MorphStartRatio >= 1 {
		cfg.MorphStartRatio = DefaultMorphStartRatio
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = MaxSelection
	}
	if cfg.MapScale == (math.Vec3{}) {
		cfg.MapScale = math.Vec3{X: 1, Y: 1, Z: 1}
	}

	t := &QuadTree{
		cfg:       cfg,
		selection: make([]Node, 0, cfg.Capacity),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Named("lod")
	}
	t.Reset()
	return t
}

// SetLODLevels derives the level count and visibility ranges. The level 0
// radius covers detailedChunksRadius chunks; each coarser level's radius
// grows by the distance ratio until the accumulated radius reaches farView
// or the level limit. The accumulated radii are then rescaled so the top
// level ends exactly at farView.
func (t *QuadTree) SetLODLevels(farView, detailedChunksRadius float32) error {
	cfg := &t.cfg
	switch {
	case farView <= 0 || gomath.IsInf(float64(farView), 0) || gomath.IsNaN(float64(farView)):
		return fmt.Errorf("%w: far view %v", ErrInvalidLevels, farView)
	case detailedChunksRadius <= 0:
		return fmt.Errorf("%w: detailed chunks radius %v", ErrInvalidLevels, detailedChunksRadius)
	case cfg.DistanceRatio < 1:
		return fmt.Errorf("%w: distance ratio %v is below 1", ErrInvalidLevels, cfg.DistanceRatio)
	case cfg.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size %d", ErrInvalidLevels, cfg.ChunkSize)
	case cfg.WorldChunksX <= 0 || cfg.WorldChunksZ <= 0:
		return fmt.Errorf("%w: world of %dx%d chunks", ErrInvalidLevels, cfg.WorldChunksX, cfg.WorldChunksZ)
	}

	radius := float64(detailedChunksRadius) * float64(cfg.ChunkSize) *
		float64(cfg.MapScale.MaxXZ()) * lod0RadiusFactor
	if radius <= 0 {
		return fmt.Errorf("%w: map scale %v", ErrInvalidLevels, cfg.MapScale)
	}

	var acc [terrain.MaxLODLevels]float64
	total := 0.0
	levels := 0
	for levels < terrain.MaxLODLevels {
		total += radius
		acc[levels] = total
		levels++
		if total >= float64(farView) {
			break
		}
		radius *= float64(cfg.DistanceRatio)
	}

	var ranges [terrain.MaxLODLevels]float32
	scale := float64(farView) / total
	for i := 0; i < levels-1; i++ {
		ranges[i] = float32(acc[i] * scale)
		if i > 0 && ranges[i] <= ranges[i-1] {
			return fmt.Errorf("%w: ranges collapse at level %d", ErrInvalidLevels, i)
		}
	}
	ranges[levels-1] = farView
	if levels > 1 && ranges[levels-2] >= farView {
		return fmt.Errorf("%w: ranges collapse at level %d", ErrInvalidLevels, levels-1)
	}

	t.levels = levels
	t.ranges = ranges
	t.sectorChunks = 1 << (levels - 1)
	t.sectorsX = (cfg.WorldChunksX + t.sectorChunks - 1) / t.sectorChunks
	t.sectorsZ = (cfg.WorldChunksZ + t.sectorChunks - 1) / t.sectorChunks

	prev := float32(0)
	for i := 0; i < levels; i++ {
		t.morphEnd[i] = ranges[i]
		t.morphStart[i] = prev + (ranges[i]-prev)*cfg.MorphStartRatio
		prev = t.morphStart[i]
	}

	t.Reset()
	t.log.Debug("LOD levels set",
		zap.Float32("far_view", farView),
		zap.Float32("detailed_chunks_radius", detailedChunksRadius),
		zap.Int("levels", levels),
		zap.Int("sector_chunks", t.sectorChunks),
		zap.Float32s("ranges", ranges[:levels]))
	return nil
}

// LODLevels returns the level count, 0 before SetLODLevels.
func (t *QuadTree) LODLevels() int {
	return t.levels
}

// SectorChunks returns the sector edge in chunks.
func (t *QuadTree) SectorChunks() int {
	return t.sectorChunks
}

// Sectors returns the sector grid extent.
func (t *QuadTree) Sectors() (x, z int) {
	return t.sectorsX, t.sectorsZ
}

// VisibilityRange returns the range of level lod.
func (t *QuadTree) VisibilityRange(lod int) float32 {
	t.checkLevel(lod)
	return t.ranges[lod]
}

// MorphRange returns the distances over which level lod morphs into the
// next coarser level.
func (t *QuadTree) MorphRange(lod int) (start, end float32) {
	t.checkLevel(lod)
	return t.morphStart[lod], t.morphEnd[lod]
}

func (t *QuadTree) checkLevel(lod int) {
	if lod < 0 || lod >= t.levels {
		panic(fmt.Sprintf("lod: level %d out of range [0,%d)", lod, t.levels))
	}
}

// SetFrustum sets the frustum used by SelectSectorNodes.
func (t *QuadTree) SetFrustum(f math.Frustum) {
	t.frustum = f
}

// Reset clears the selection buffer and its statistics.
func (t *QuadTree) Reset() {
	t.selection = t.selection[:0]
	t.perLevel = [terrain.MaxLODLevels]int{}
	t.minLOD = terrain.MaxLODLevels
	t.maxLOD = 0
}

// SelectionCount returns the number of selected nodes.
func (t *QuadTree) SelectionCount() int {
	return len(t.selection)
}

// Selection returns the selected nodes. The slice is reused by the next
// selection.
func (t *QuadTree) Selection() []Node {
	return t.selection
}

// SelectedNode returns selection record i.
func (t *QuadTree) SelectedNode(i int) Node {
	return t.selection[i]
}

// SelectedNodeLOD returns the level of selection record i.
func (t *QuadTree) SelectedNodeLOD(i int) int {
	return t.selection[i].LOD()
}

// SelectedNodeAABB returns the world bounds of selection record i.
func (t *QuadTree) SelectedNodeAABB(i int) math.AABB {
	n := t.selection[i]
	return t.nodeBox(int(n.X), int(n.Z), int(n.Size), n.MinY, n.MaxY)
}

// LODNodesCount returns how many selected nodes have level lod.
func (t *QuadTree) LODNodesCount(lod int) int {
	if lod < 0 || lod >= terrain.MaxLODLevels {
		return 0
	}
	return t.perLevel[lod]
}

// MinSelectedLOD returns the finest selected level. It is MaxLODLevels when
// nothing is selected.
func (t *QuadTree) MinSelectedLOD() int {
	return t.minLOD
}

// MaxSelectedLOD returns the coarsest selected level.
func (t *QuadTree) MaxSelectedLOD() int {
	return t.maxLOD
}

// nodeBox builds the world AABB of a node given in chunks.
func (t *QuadTree) nodeBox(chunkX, chunkZ, size int, lo, hi uint16) math.AABB {
	s := t.cfg.MapScale
	o := t.cfg.MapOffset
	c := float32(t.cfg.ChunkSize)
	return math.AABB{
		Position: math.Vec3{
			X: o.X + float32(chunkX)*c*s.X,
			Y: o.Y + float32(lo)*s.Y,
			Z: o.Z + float32(chunkZ)*c*s.Z,
		},
		Size: math.Vec3{
			X: float32(size) * c * s.X,
			Y: float32(hi-lo) * s.Y,
			Z: float32(size) * c * s.Z,
		},
	}
}

// inWorld reports whether a chunk lies inside the world.
func (t *QuadTree) inWorld(chunkX, chunkZ int) bool {
	return chunkX >= 0 && chunkZ >= 0 && chunkX < t.cfg.WorldChunksX && chunkZ < t.cfg.WorldChunksZ
}

// nodeChunk returns the world chunk of a node's corner.
func (t *QuadTree) nodeChunk(key terrain.NodeKey, lod int) (x, z int) {
	return int(key.Sector.X)*t.sectorChunks + int(key.Cell.X)<<lod,
		int(key.Sector.Z)*t.sectorChunks + int(key.Cell.Z)<<lod
}
