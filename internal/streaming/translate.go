package streaming

import (
	"errors"
	"fmt"

	"github.com/Faultbox/terrainer/internal/terrain"
)

var errRegionMismatch = errors.New("region does not match store layout")

// regionBlock caches the minmax block of the last region the worker read.
// Several sectors share a region when sectors are smaller than regions.
type regionBlock struct {
	key  terrain.CellKey
	data []uint16
	ok   bool
}

func (w *worker) regionMinmax(key terrain.CellKey) ([]uint16, error) {
	if w.block.ok && w.block.key == key {
		return w.block.data, nil
	}
	r := w.s.region(key)
	if r == nil {
		return nil, nil
	}
	data, err := r.ReadMinmax()
	if err != nil {
		return nil, fmt.Errorf("region %v: %w", key, err)
	}
	w.block = regionBlock{key: key, data: data, ok: true}
	return data, nil
}

// readSector fills buf with the sector's minmax pyramid.
//
// Sector and region edges are both powers of two, so each overlapping region
// contributes one square of span = min(sector, region) chunks:
//
//   - sector < region: one region, the sector's rectangle sliced out of it
//   - sector == region: one region, copied whole
//   - sector > region: every covered region at its offset; regions with no
//     file read as zero
//
// Levels that span cannot reach, or that the regions did not persist, are
// built by 2x2 reduction from the finest level below them.
func (w *worker) readSector(sector terrain.CellKey, buf []uint16) error {
	s := w.s
	clear(buf)

	sectorSize := s.layout.SectorChunks()
	regionSize := s.layout.RegionSize
	span := min(sectorSize, regionSize)
	direct := min(s.pyramid.Levels, terrain.Log2(span)+1, s.regionLODs)
	if direct < 1 {
		return fmt.Errorf("%w: no persisted levels", errRegionMismatch)
	}
	src := terrain.PyramidShape{Size: regionSize, Levels: s.regionLODs}

	x0, z0 := int(sector.X)*sectorSize, int(sector.Z)*sectorSize
	for rz := z0 / regionSize; rz*regionSize < z0+sectorSize; rz++ {
		for rx := x0 / regionSize; rx*regionSize < x0+sectorSize; rx++ {
			if rx >= s.layout.WorldRegionsX || rz >= s.layout.WorldRegionsZ {
				continue
			}
			data, err := w.regionMinmax(terrain.CellKey{X: uint16(rx), Z: uint16(rz)})
			if err != nil {
				return err
			}
			if data == nil {
				continue
			}
			if len(data) < src.LevelOffset(direct) {
				return fmt.Errorf("%w: region (%d,%d) has %d elements", errRegionMismatch, rx, rz, len(data))
			}

			// Overlap origin in sector-local and region-local chunks.
			ox, oz := max(rx*regionSize, x0), max(rz*regionSize, z0)
			ax, az := ox-x0, oz-z0
			bx, bz := ox-rx*regionSize, oz-rz*regionSize

			for lod := 0; lod < direct; lod++ {
				n := span >> lod
				terrain.CopyRect(
					s.pyramid.Level(buf, lod), s.pyramid.LevelSize(lod), ax>>lod, az>>lod,
					src.Level(data, lod), src.LevelSize(lod), bx>>lod, bz>>lod,
					n, n)
			}
		}
	}

	s.pyramid.Synthesize(buf, direct)
	return nil
}
