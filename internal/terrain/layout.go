package terrain

import (
	"errors"
	"fmt"
)

// MaxLODLevels is the number of LOD levels a sector quadtree may have. The
// level is packed into 4 bits of a selection record.
const MaxLODLevels = 15

// Layout errors.
var (
	ErrInvalidLayout = errors.New("invalid terrain layout")
)

// Layout describes the world grid: chunk and region sizes from the store
// configuration, world extent in regions, and the sector size derived from
// the LOD level count.
type Layout struct {
	ChunkSize     int // height samples per chunk edge
	RegionSize    int // chunks per region edge
	WorldRegionsX int
	WorldRegionsZ int
	LODLevels     int // levels per sector quadtree, 0 is finest
}

// Validate checks that the layout is addressable.
func (l Layout) Validate() error {
	switch {
	case !IsPowerOfTwo(l.ChunkSize):
		return fmt.Errorf("%w: chunk size %d is not a power of two", ErrInvalidLayout, l.ChunkSize)
	case !IsPowerOfTwo(l.RegionSize):
		return fmt.Errorf("%w: region size %d is not a power of two", ErrInvalidLayout, l.RegionSize)
	case l.WorldRegionsX <= 0 || l.WorldRegionsZ <= 0:
		return fmt.Errorf("%w: world extent %dx%d", ErrInvalidLayout, l.WorldRegionsX, l.WorldRegionsZ)
	case l.LODLevels < 1 || l.LODLevels > MaxLODLevels:
		return fmt.Errorf("%w: %d LOD levels", ErrInvalidLayout, l.LODLevels)
	}

	if l.WorldChunksX() > 1<<16 || l.WorldChunksZ() > 1<<16 {
		return fmt.Errorf("%w: world of %dx%d chunks exceeds 16-bit addressing",
			ErrInvalidLayout, l.WorldChunksX(), l.WorldChunksZ())
	}
	return nil
}

// SectorChunks returns the edge of a sector (the top-level node) in chunks.
func (l Layout) SectorChunks() int {
	return 1 << (l.LODLevels - 1)
}

// WorldChunksX returns the world width in chunks.
func (l Layout) WorldChunksX() int {
	return l.WorldRegionsX * l.RegionSize
}

// WorldChunksZ returns the world depth in chunks.
func (l Layout) WorldChunksZ() int {
	return l.WorldRegionsZ * l.RegionSize
}

// SectorsX returns the sector grid width. Partial sectors at the edge count.
func (l Layout) SectorsX() int {
	s := l.SectorChunks()
	return (l.WorldChunksX() + s - 1) / s
}

// SectorsZ returns the sector grid depth.
func (l Layout) SectorsZ() int {
	s := l.SectorChunks()
	return (l.WorldChunksZ() + s - 1) / s
}

// SectorCount returns the number of sectors in the world.
func (l Layout) SectorCount() int {
	return l.SectorsX() * l.SectorsZ()
}

// SectorIndex maps a sector key to a dense index.
func (l Layout) SectorIndex(s CellKey) (int, bool) {
	sx, sz := l.SectorsX(), l.SectorsZ()
	if int(s.X) >= sx || int(s.Z) >= sz {
		return 0, false
	}
	return int(s.Z)*sx + int(s.X), true
}

// SectorAt is the inverse of SectorIndex.
func (l Layout) SectorAt(index int) CellKey {
	sx := l.SectorsX()
	return CellKey{X: uint16(index % sx), Z: uint16(index / sx)}
}

// NodeChunk returns the world chunk coordinates of a node's corner.
func (l Layout) NodeChunk(key NodeKey, lod int) (x, z int) {
	s := l.SectorChunks()
	return int(key.Sector.X)*s + int(key.Cell.X)<<lod,
		int(key.Sector.Z)*s + int(key.Cell.Z)<<lod
}

// InWorld reports whether the chunk lies inside the world extent.
func (l Layout) InWorld(chunkX, chunkZ int) bool {
	return chunkX >= 0 && chunkZ >= 0 && chunkX < l.WorldChunksX() && chunkZ < l.WorldChunksZ()
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// RoundPowerOfTwo snaps n to a power of two, rounding up when n grew past
// prev and down otherwise.
func RoundPowerOfTwo(n, prev int) int {
	if n <= 1 {
		return 1
	}
	if IsPowerOfTwo(n) {
		return n
	}
	p := 1
	for p < n {
		p <<= 1
	}
	if n > prev {
		return p
	}
	return p >> 1
}

// Log2 returns floor(log2(n)) for n > 0.
func Log2(n int) int {
	r := 0
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}
