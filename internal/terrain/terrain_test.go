package terrain

import (
	"errors"
	"testing"
)

func TestCellKeyArithmetic(t *testing.T) {
	a := CellKey{3, 7}
	b := CellKey{1, 2}

	if got := a.Add(b); got != (CellKey{4, 9}) {
		t.Errorf("Add = %v", got)
	}
	if got := a.Sub(b); got != (CellKey{2, 5}) {
		t.Errorf("Sub = %v", got)
	}
	if got := a.Hash(); got != 3|7<<16 {
		t.Errorf("Hash = %x", got)
	}
	if got := a.Child(1, 0); got != (CellKey{7, 14}) {
		t.Errorf("Child = %v", got)
	}
	if a.Hash() == (CellKey{7, 3}).Hash() {
		t.Error("swapped coordinates should hash differently")
	}
}

func TestLayoutSectors(t *testing.T) {
	l := Layout{ChunkSize: 32, RegionSize: 16, WorldRegionsX: 3, WorldRegionsZ: 2, LODLevels: 4}
	if err := l.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if l.SectorChunks() != 8 {
		t.Errorf("expected sector of 8 chunks, got %d", l.SectorChunks())
	}
	if l.SectorsX() != 6 || l.SectorsZ() != 4 {
		t.Errorf("expected 6x4 sectors, got %dx%d", l.SectorsX(), l.SectorsZ())
	}

	for i := 0; i < l.SectorCount(); i++ {
		s := l.SectorAt(i)
		j, ok := l.SectorIndex(s)
		if !ok || j != i {
			t.Fatalf("SectorIndex(SectorAt(%d)) = %d, %v", i, j, ok)
		}
	}
	if _, ok := l.SectorIndex(CellKey{6, 0}); ok {
		t.Error("sector beyond the grid should not be indexed")
	}

	x, z := l.NodeChunk(NodeKey{Sector: CellKey{2, 1}, Cell: CellKey{1, 3}}, 1)
	if x != 18 || z != 14 {
		t.Errorf("NodeChunk = (%d,%d), want (18,14)", x, z)
	}
}

func TestLayoutPartialSector(t *testing.T) {
	l := Layout{ChunkSize: 16, RegionSize: 4, WorldRegionsX: 3, WorldRegionsZ: 1, LODLevels: 4}
	if l.SectorsX() != 2 || l.SectorsZ() != 1 {
		t.Errorf("expected 2x1 sectors for 12x4 chunks, got %dx%d", l.SectorsX(), l.SectorsZ())
	}
	if l.InWorld(12, 0) || !l.InWorld(11, 3) {
		t.Error("InWorld disagrees with the world extent")
	}
}

func TestLayoutValidate(t *testing.T) {
	tests := []struct {
		name string
		l    Layout
	}{
		{"chunk not po2", Layout{ChunkSize: 30, RegionSize: 16, WorldRegionsX: 1, WorldRegionsZ: 1, LODLevels: 3}},
		{"region not po2", Layout{ChunkSize: 32, RegionSize: 12, WorldRegionsX: 1, WorldRegionsZ: 1, LODLevels: 3}},
		{"empty world", Layout{ChunkSize: 32, RegionSize: 16, WorldRegionsX: 0, WorldRegionsZ: 1, LODLevels: 3}},
		{"too many levels", Layout{ChunkSize: 32, RegionSize: 16, WorldRegionsX: 1, WorldRegionsZ: 1, LODLevels: 16}},
		{"too wide", Layout{ChunkSize: 32, RegionSize: 1024, WorldRegionsX: 128, WorldRegionsZ: 1, LODLevels: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.l.Validate(); !errors.Is(err, ErrInvalidLayout) {
				t.Errorf("expected ErrInvalidLayout, got %v", err)
			}
		})
	}
}

func TestRoundPowerOfTwo(t *testing.T) {
	tests := []struct {
		n, prev, want int
	}{
		{33, 32, 64},
		{31, 32, 16},
		{64, 32, 64},
		{0, 32, 1},
		{100, 200, 64},
	}
	for _, tt := range tests {
		if got := RoundPowerOfTwo(tt.n, tt.prev); got != tt.want {
			t.Errorf("RoundPowerOfTwo(%d, %d) = %d, want %d", tt.n, tt.prev, got, tt.want)
		}
	}
	if Log2(64) != 6 || Log2(1) != 0 {
		t.Error("Log2 mismatch")
	}
}

func TestPyramidOffsets(t *testing.T) {
	p := PyramidShape{Size: 8, Levels: 4}
	// 2*64 + 2*16 + 2*4 + 2*1
	if p.Len() != 170 {
		t.Errorf("expected 170 elements, got %d", p.Len())
	}
	if p.LevelOffset(2) != 160 {
		t.Errorf("expected level 2 at 160, got %d", p.LevelOffset(2))
	}

	buf := make([]uint16, p.Len())
	p.SetMinMax(buf, 1, 3, 2, 10, 20)
	lo, hi := p.MinMax(buf, 1, 3, 2)
	if lo != 10 || hi != 20 {
		t.Errorf("MinMax = (%d,%d), want (10,20)", lo, hi)
	}
}

func TestSynthesizeReducesPairwise(t *testing.T) {
	p := PyramidShape{Size: 4, Levels: 3}
	buf := make([]uint16, p.Len())

	for z := 0; z < 4; z++ {
		for x := 0; x < 4; x++ {
			v := uint16(z*4 + x)
			p.SetMinMax(buf, 0, x, z, v, v+100)
		}
	}
	p.Synthesize(buf, 1)

	wantLevel1 := [][4]uint16{
		{0, 105, 2, 107},
		{8, 113, 10, 115},
	}
	for z, row := range wantLevel1 {
		for x := 0; x < 2; x++ {
			lo, hi := p.MinMax(buf, 1, x, z)
			if lo != row[2*x] || hi != row[2*x+1] {
				t.Errorf("level 1 (%d,%d) = (%d,%d), want (%d,%d)", x, z, lo, hi, row[2*x], row[2*x+1])
			}
		}
	}

	lo, hi := p.MinMax(buf, 2, 0, 0)
	if lo != 0 || hi != 115 {
		t.Errorf("level 2 = (%d,%d), want (0,115)", lo, hi)
	}
}

func TestCopyRect(t *testing.T) {
	src := make([]uint16, 2*4*4)
	for i := range src {
		src[i] = uint16(i)
	}
	dst := make([]uint16, 2*2*2)

	// Entry (2,1) of the 4x4 source is element 2*(1*4+2) = 12.
	CopyRect(dst, 2, 0, 0, src, 4, 2, 1, 2, 2)

	want := []uint16{12, 13, 14, 15, 20, 21, 22, 23}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst = %v, want %v", dst, want)
		}
	}
}
