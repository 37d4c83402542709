package terrain

// PyramidShape describes a stack of square minmax levels. Level l is
// (Size>>l) entries wide; each entry is a (min, max) pair of uint16 stored
// row-major, so level l occupies 2*(Size>>l)^2 elements.
type PyramidShape struct {
	Size   int
	Levels int
}

// Pyramid returns the shape of a sector's minmax pyramid.
func (l Layout) Pyramid() PyramidShape {
	return PyramidShape{Size: l.SectorChunks(), Levels: l.LODLevels}
}

// LevelSize returns the edge of level lod in entries.
func (p PyramidShape) LevelSize(lod int) int {
	return p.Size >> lod
}

// LevelLen returns the number of uint16 elements in level lod.
func (p PyramidShape) LevelLen(lod int) int {
	n := p.LevelSize(lod)
	return 2 * n * n
}

// LevelOffset returns the element offset of level lod.
func (p PyramidShape) LevelOffset(lod int) int {
	off := 0
	for i := 0; i < lod; i++ {
		off += p.LevelLen(i)
	}
	return off
}

// Len returns the element count of the whole pyramid.
func (p PyramidShape) Len() int {
	return p.LevelOffset(p.Levels)
}

// Level returns the slice of buf holding level lod.
func (p PyramidShape) Level(buf []uint16, lod int) []uint16 {
	off := p.LevelOffset(lod)
	return buf[off : off+p.LevelLen(lod)]
}

// MinMax reads entry (x, z) of level lod.
func (p PyramidShape) MinMax(buf []uint16, lod, x, z int) (uint16, uint16) {
	i := p.LevelOffset(lod) + 2*(z*p.LevelSize(lod)+x)
	return buf[i], buf[i+1]
}

// SetMinMax writes entry (x, z) of level lod.
func (p PyramidShape) SetMinMax(buf []uint16, lod, x, z int, lo, hi uint16) {
	i := p.LevelOffset(lod) + 2*(z*p.LevelSize(lod)+x)
	buf[i] = lo
	buf[i+1] = hi
}

// Synthesize fills levels from..Levels-1 by 2x2 reduction, each level built
// from the one below it. from must be at least 1.
func (p PyramidShape) Synthesize(buf []uint16, from int) {
	for lod := from; lod < p.Levels; lod++ {
		size := p.LevelSize(lod)
		if size == 0 {
			return
		}
		Reduce2x2(p.Level(buf, lod), p.Level(buf, lod-1), size)
	}
}

// Reduce2x2 builds a size x size minmax level from a 2size x 2size one:
// each entry takes the minimum of four minima and the maximum of four
// maxima.
func Reduce2x2(dst, src []uint16, size int) {
	srcRow := 2 * size * 2 // elements per source row

	for z := 0; z < size; z++ {
		for x := 0; x < size; x++ {
			s := 2*z*srcRow + 2*2*x
			lo := min(src[s], src[s+2], src[s+srcRow], src[s+srcRow+2])
			hi := max(src[s+1], src[s+3], src[s+srcRow+1], src[s+srcRow+3])
			d := 2 * (z*size + x)
			dst[d] = lo
			dst[d+1] = hi
		}
	}
}

// CopyRect copies a w x h entry rectangle between two minmax levels.
// Rows are copied one at a time because a sub-rectangle is not contiguous
// in a row-major level.
func CopyRect(dst []uint16, dstSize, dstX, dstZ int, src []uint16, srcSize, srcX, srcZ, w, h int) {
	for row := 0; row < h; row++ {
		d := 2 * ((dstZ+row)*dstSize + dstX)
		s := 2 * ((srcZ+row)*srcSize + srcX)
		copy(dst[d:d+2*w], src[s:s+2*w])
	}
}
