package lod

import (
	"go.uber.org/zap"

	"github.com/Faultbox/terrainer/internal/terrain"
	"github.com/Faultbox/terrainer/pkg/math"
)

// Select rebuilds the selection for one frame. Every sector whose bounds
// reach within the far view is marked as wanted in src, and resident
// sectors are selected down to stopAtLOD. The result is ResultMaxReached
// when the buffer filled up, ResultSelected when anything was selected and
// ResultUndefined otherwise.
func (t *QuadTree) Select(viewer math.Vec3, frustum math.Frustum, src MinmaxSource, stopAtLOD int) Result {
	t.checkLevel(stopAtLOD)
	t.Reset()
	t.frustum = frustum

	far := t.ranges[t.levels-1]
	far2 := far * far
	result := ResultUndefined

	for sz := 0; sz < t.sectorsZ; sz++ {
		for sx := 0; sx < t.sectorsX; sx++ {
			sector := terrain.CellKey{X: uint16(sx), Z: uint16(sz)}
			box := t.nodeBox(sx*t.sectorChunks, sz*t.sectorChunks, t.sectorChunks, 0, maxHeight)
			if box.MinDistanceSquared(viewer) > far2 {
				continue
			}

			src.LoadMinmax(sector, t.frustum.ClassifyAABB(box) != math.Outside)
			if !src.IsSectorLoaded(sector) {
				continue
			}

			switch t.SelectSectorNodes(viewer, sector, src, stopAtLOD) {
			case ResultMaxReached:
				t.log.Debug("selection buffer full",
					zap.Int("capacity", cap(t.selection)),
					zap.Stringer("sector", sector))
				return ResultMaxReached
			case ResultSelected:
				result = ResultSelected
			}
		}
	}
	return result
}

// SelectSectorNodes selects the nodes of one sector against the current
// frustum and appends them to the selection.
func (t *QuadTree) SelectSectorNodes(viewer math.Vec3, sector terrain.CellKey, src MinmaxSource, stopAtLOD int) Result {
	t.checkLevel(stopAtLOD)
	top := t.levels - 1
	return t.lodSelect(viewer, false, terrain.NodeKey{Sector: sector}, top, stopAtLOD, src)
}

// lodSelect selects the node at key and level lod, or its children when
// they are in range. A node is written unless all four children were
// selected or culled; each written node records which children were
// selected on their own.
func (t *QuadTree) lodSelect(viewer math.Vec3, parentInside bool, key terrain.NodeKey, lod, stopAtLOD int, src MinmaxSource) Result {
	cx, cz := t.nodeChunk(key, lod)
	if !t.inWorld(cx, cz) {
		return ResultOutOfMap
	}
	size := 1 << lod

	lo, hi, hasData := src.GetMinmax(key, lod)
	if !hasData {
		lo, hi = 0, maxHeight
	}
	box := t.nodeBox(cx, cz, size, lo, hi)

	dist2 := box.MinDistanceSquared(viewer)
	if r := t.ranges[lod]; dist2 > r*r {
		return ResultOutOfRange
	}

	inside := parentInside
	if !inside {
		switch t.frustum.ClassifyAABB(box) {
		case math.Outside:
			return ResultOutOfFrustum
		case math.Inside:
			inside = true
		}
	}

	var children [4]Result
	allCovered := false
	if lod > stopAtLOD {
		if r := t.ranges[lod-1]; dist2 <= r*r {
			allCovered = true
			half := size >> 1
			for q, off := range quadrantOffsets {
				child := terrain.NodeKey{Sector: key.Sector, Cell: key.Cell.Child(off[0], off[1])}
				if !t.inWorld(cx+int(off[0])*half, cz+int(off[1])*half) {
					children[q] = ResultOutOfMap
				} else {
					children[q] = t.lodSelect(viewer, inside, child, lod-1, stopAtLOD, src)
				}
				if children[q] == ResultMaxReached {
					return ResultMaxReached
				}
				if !children[q].covers() {
					allCovered = false
				}
			}
		}
	}

	if allCovered {
		for _, r := range children {
			if r == ResultSelected {
				return ResultSelected
			}
		}
		return ResultOutOfFrustum
	}

	if !hasData {
		return ResultUndefined
	}
	if len(t.selection) == cap(t.selection) {
		return ResultMaxReached
	}

	t.selection = append(t.selection, Node{
		Key:   key,
		X:     uint16(cx),
		Z:     uint16(cz),
		Size:  uint16(size),
		MinY:  lo,
		MaxY:  hi,
		Flags: makeFlags(lod, children),
	})
	t.perLevel[lod]++
	t.minLOD = min(t.minLOD, lod)
	t.maxLOD = max(t.maxLOD, lod)
	return ResultSelected
}
