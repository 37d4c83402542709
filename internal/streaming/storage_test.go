package streaming

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Faultbox/terrainer/internal/terrain"
	"github.com/Faultbox/terrainer/pkg/math"
	"github.com/Faultbox/terrainer/pkg/region"
)

// worldValue is the synthetic level-0 minmax of chunk (gx, gz).
func worldValue(gx, gz int) (uint16, uint16) {
	lo := uint16(100 + gx*3 + gz*5)
	return lo, lo + 50 + uint16(gx%3)
}

// writeRegion writes region (rx, rz) with lods persisted levels built from
// worldValue.
func writeRegion(t *testing.T, dir string, layout terrain.Layout, rx, rz, lods int) {
	t.Helper()
	size := layout.RegionSize
	shape := terrain.PyramidShape{Size: size, Levels: lods}
	buf := make([]uint16, shape.Len())
	for z := 0; z < size; z++ {
		for x := 0; x < size; x++ {
			lo, hi := worldValue(rx*size+x, rz*size+z)
			shape.SetMinMax(buf, 0, x, z, lo, hi)
		}
	}
	shape.Synthesize(buf, 1)

	h := region.NewHeader(uint32(layout.ChunkSize), uint32(size), lods)
	r, err := region.Create(filepath.Join(dir, region.FileName(rx, rz)), h, buf)
	if err != nil {
		t.Fatalf("writing region (%d,%d): %v", rx, rz, err)
	}
	r.Close()
}

// expectedMinmax computes a node's extrema by brute force over level 0.
// Chunks of regions in missing read as zero.
func expectedMinmax(layout terrain.Layout, key terrain.NodeKey, lod int, missing map[terrain.CellKey]bool) (uint16, uint16) {
	x0, z0 := layout.NodeChunk(key, lod)
	lo, hi := uint16(0xFFFF), uint16(0)
	for z := z0; z < z0+1<<lod; z++ {
		for x := x0; x < x0+1<<lod; x++ {
			var l, h uint16
			rk := terrain.CellKey{X: uint16(x / layout.RegionSize), Z: uint16(z / layout.RegionSize)}
			if !missing[rk] {
				l, h = worldValue(x, z)
			}
			lo, hi = min(lo, l), max(hi, h)
		}
	}
	return lo, hi
}

func newTestStorage(t *testing.T, cfg Config, layout terrain.Layout) *Storage {
	t.Helper()
	s, err := New(cfg, layout)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func waitStatus(t *testing.T, s *Storage, sector terrain.CellKey, want Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.SectorStatus(sector) == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("sector %v stuck in %v, want %v", sector, s.SectorStatus(sector), want)
}

func loadSector(t *testing.T, s *Storage, sector terrain.CellKey) {
	t.Helper()
	s.LoadMinmax(sector, true)
	st := s.Process()
	if st.Submitted != 1 {
		t.Fatalf("expected 1 submitted request for %v, got %+v", sector, st)
	}
	waitStatus(t, s, sector, StatusLoaded)
}

func checkPyramid(t *testing.T, s *Storage, sector terrain.CellKey, missing map[terrain.CellKey]bool) {
	t.Helper()
	layout := s.Layout()
	for lod := 0; lod < layout.LODLevels; lod++ {
		n := layout.SectorChunks() >> lod
		for cz := 0; cz < n; cz++ {
			for cx := 0; cx < n; cx++ {
				key := terrain.NodeKey{Sector: sector, Cell: terrain.CellKey{X: uint16(cx), Z: uint16(cz)}}
				lo, hi, ok := s.GetMinmax(key, lod)
				if !ok {
					t.Fatalf("GetMinmax(%v, %d) not ok", key, lod)
				}
				wantLo, wantHi := expectedMinmax(layout, key, lod, missing)
				if lo != wantLo || hi != wantHi {
					t.Fatalf("lod %d node %v = (%d,%d), want (%d,%d)", lod, key, lo, hi, wantLo, wantHi)
				}
			}
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	layout := terrain.Layout{ChunkSize: 32, RegionSize: 16, WorldRegionsX: 1, WorldRegionsZ: 1, LODLevels: 4}

	cfg := DefaultConfig(t.TempDir())
	cfg.QueueSize = 0
	if _, err := New(cfg, layout); err == nil {
		t.Error("expected error for zero queue size")
	}

	layout.ChunkSize = 30
	if _, err := New(DefaultConfig(t.TempDir()), layout); !errors.Is(err, terrain.ErrInvalidLayout) {
		t.Errorf("expected ErrInvalidLayout, got %v", err)
	}
}

func TestAddressTranslation(t *testing.T) {
	tests := []struct {
		name       string
		layout     terrain.Layout
		regions    [][2]int
		regionLODs int
		sectors    []terrain.CellKey
		missing    map[terrain.CellKey]bool
	}{
		{
			name:       "sector smaller than region",
			layout:     terrain.Layout{ChunkSize: 32, RegionSize: 16, WorldRegionsX: 2, WorldRegionsZ: 1, LODLevels: 4},
			regions:    [][2]int{{0, 0}, {1, 0}},
			regionLODs: 5,
			sectors:    []terrain.CellKey{{X: 1, Z: 0}, {X: 1, Z: 1}, {X: 3, Z: 0}},
		},
		{
			name:       "sector equal to region with synthesized levels",
			layout:     terrain.Layout{ChunkSize: 32, RegionSize: 8, WorldRegionsX: 2, WorldRegionsZ: 2, LODLevels: 4},
			regions:    [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}},
			regionLODs: 2,
			sectors:    []terrain.CellKey{{X: 0, Z: 0}, {X: 1, Z: 1}},
		},
		{
			name:       "sector larger than region with a missing region",
			layout:     terrain.Layout{ChunkSize: 32, RegionSize: 4, WorldRegionsX: 2, WorldRegionsZ: 2, LODLevels: 4},
			regions:    [][2]int{{0, 0}, {1, 0}, {0, 1}},
			regionLODs: 3,
			sectors:    []terrain.CellKey{{X: 0, Z: 0}},
			missing:    map[terrain.CellKey]bool{{X: 1, Z: 1}: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, r := range tt.regions {
				writeRegion(t, dir, tt.layout, r[0], r[1], tt.regionLODs)
			}

			s := newTestStorage(t, DefaultConfig(dir), tt.layout)
			report, err := s.LoadHeaders(context.Background())
			if err != nil {
				t.Fatalf("LoadHeaders: %v", err)
			}
			if report.Accepted != len(tt.regions) || len(report.Skipped) != 0 {
				t.Fatalf("unexpected scan report: %+v", report)
			}

			for _, sector := range tt.sectors {
				loadSector(t, s, sector)
				checkPyramid(t, s, sector, tt.missing)
			}
		})
	}
}

func TestGetMinmaxBounds(t *testing.T) {
	layout := terrain.Layout{ChunkSize: 32, RegionSize: 8, WorldRegionsX: 1, WorldRegionsZ: 1, LODLevels: 4}
	dir := t.TempDir()
	writeRegion(t, dir, layout, 0, 0, 4)

	s := newTestStorage(t, DefaultConfig(dir), layout)
	if _, err := s.LoadHeaders(context.Background()); err != nil {
		t.Fatalf("LoadHeaders: %v", err)
	}

	sector := terrain.CellKey{}
	if _, _, ok := s.GetMinmax(terrain.NodeKey{Sector: sector}, 0); ok {
		t.Error("GetMinmax should fail before the sector is loaded")
	}
	loadSector(t, s, sector)

	if _, _, ok := s.GetMinmax(terrain.NodeKey{Sector: sector, Cell: terrain.CellKey{X: 2}}, 2); ok {
		t.Error("cell beyond level size should not resolve")
	}
	if _, _, ok := s.GetMinmax(terrain.NodeKey{Sector: sector}, 4); ok {
		t.Error("lod beyond the pyramid should not resolve")
	}
	if _, _, ok := s.GetMinmax(terrain.NodeKey{Sector: terrain.CellKey{X: 5}}, 0); ok {
		t.Error("sector outside the world should not resolve")
	}
}

func TestLoadHeadersSkipsBadFiles(t *testing.T) {
	layout := terrain.Layout{ChunkSize: 32, RegionSize: 8, WorldRegionsX: 2, WorldRegionsZ: 2, LODLevels: 4}
	dir := t.TempDir()
	writeRegion(t, dir, layout, 0, 0, 4)

	// Corrupt magic.
	writeRegion(t, dir, layout, 1, 0, 4)
	path := filepath.Join(dir, region.FileName(1, 0))
	data, _ := os.ReadFile(path)
	copy(data, "XXXX")
	os.WriteFile(path, data, 0o644)

	// Chunk size disagrees with the store.
	other := layout
	other.ChunkSize = 64
	writeRegion(t, dir, other, 0, 1, 4)

	// Outside the world.
	writeRegion(t, dir, layout, 5, 5, 4)

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)

	s := newTestStorage(t, DefaultConfig(dir), layout)
	report, err := s.LoadHeaders(context.Background())
	if err != nil {
		t.Fatalf("LoadHeaders: %v", err)
	}

	if report.Accepted != 1 {
		t.Errorf("expected 1 accepted region, got %d", report.Accepted)
	}
	wantSkipped := []string{"region_0_1.bin", "region_1_0.bin", "region_5_5.bin"}
	if len(report.Skipped) != len(wantSkipped) {
		t.Fatalf("expected %d skipped files, got %+v", len(wantSkipped), report.Skipped)
	}
	for i, name := range wantSkipped {
		if report.Skipped[i].File != name {
			t.Errorf("skipped[%d] = %s, want %s", i, report.Skipped[i].File, name)
		}
	}
	if !errors.Is(report.Skipped[1].Err, region.ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic for corrupt file, got %v", report.Skipped[1].Err)
	}

	if s.RegionCount() != 1 {
		t.Errorf("expected 1 region, got %d", s.RegionCount())
	}
	if !s.HasRegion(terrain.CellKey{X: 0, Z: 0}) || s.HasRegion(terrain.CellKey{X: 1, Z: 0}) {
		t.Error("region backing flags do not match accepted files")
	}
}

func TestLoadHeadersBadDirectory(t *testing.T) {
	layout := terrain.Layout{ChunkSize: 32, RegionSize: 8, WorldRegionsX: 1, WorldRegionsZ: 1, LODLevels: 4}

	s := newTestStorage(t, DefaultConfig(filepath.Join(t.TempDir(), "missing")), layout)
	if _, err := s.LoadHeaders(context.Background()); !errors.Is(err, ErrBadDirectory) {
		t.Errorf("expected ErrBadDirectory for missing dir, got %v", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	os.WriteFile(file, nil, 0o644)
	s = newTestStorage(t, DefaultConfig(file), layout)
	if _, err := s.LoadHeaders(context.Background()); !errors.Is(err, ErrBadDirectory) {
		t.Errorf("expected ErrBadDirectory for a file, got %v", err)
	}
}

func TestLoadHeadersIsIdempotent(t *testing.T) {
	layout := terrain.Layout{ChunkSize: 32, RegionSize: 8, WorldRegionsX: 1, WorldRegionsZ: 1, LODLevels: 4}
	dir := t.TempDir()
	writeRegion(t, dir, layout, 0, 0, 4)

	s := newTestStorage(t, DefaultConfig(dir), layout)
	if _, err := s.LoadHeaders(context.Background()); err != nil {
		t.Fatalf("LoadHeaders: %v", err)
	}
	loadSector(t, s, terrain.CellKey{})

	report, err := s.LoadHeaders(context.Background())
	if err != nil {
		t.Fatalf("second LoadHeaders: %v", err)
	}
	if report.Accepted != 1 || s.RegionCount() != 1 {
		t.Errorf("expected the same region set, got %+v", report)
	}
	if s.IsSectorLoaded(terrain.CellKey{}) {
		t.Error("rescan should evict resident sectors")
	}
	if n := s.Stats().Pool.Allocated; n != 0 {
		t.Errorf("expected empty pool after rescan, got %d blocks", n)
	}

	loadSector(t, s, terrain.CellKey{})
}

func TestLoadMinmaxSkipsUnbackedSectors(t *testing.T) {
	layout := terrain.Layout{ChunkSize: 32, RegionSize: 8, WorldRegionsX: 2, WorldRegionsZ: 1, LODLevels: 4}
	dir := t.TempDir()
	writeRegion(t, dir, layout, 0, 0, 4)

	s := newTestStorage(t, DefaultConfig(dir), layout)
	if _, err := s.LoadHeaders(context.Background()); err != nil {
		t.Fatalf("LoadHeaders: %v", err)
	}

	s.LoadMinmax(terrain.CellKey{X: 1}, true)
	s.LoadMinmax(terrain.CellKey{X: 9}, true)
	if st := s.Process(); st.Submitted != 0 {
		t.Errorf("expected nothing submitted, got %+v", st)
	}

	// Repeated requests for one sector queue once.
	s.LoadMinmax(terrain.CellKey{}, true)
	s.LoadMinmax(terrain.CellKey{}, false)
	if len(s.pending) != 1 {
		t.Errorf("expected 1 pending request, got %d", len(s.pending))
	}
}

func TestProcessDropsWhenQueueFull(t *testing.T) {
	layout := terrain.Layout{ChunkSize: 32, RegionSize: 8, WorldRegionsX: 4, WorldRegionsZ: 1, LODLevels: 4}
	dir := t.TempDir()
	for x := 0; x < 4; x++ {
		writeRegion(t, dir, layout, x, 0, 4)
	}

	cfg := DefaultConfig(dir)
	cfg.QueueSize = 1
	s := newTestStorage(t, cfg, layout)
	if _, err := s.LoadHeaders(context.Background()); err != nil {
		t.Fatalf("LoadHeaders: %v", err)
	}

	// Keep the worker from draining the queue.
	s.running = true
	defer func() { s.running = false }()

	// Viewer in sector 2 looking toward +X: sector 3 ranks first.
	s.UpdateViewer(math.Vec3{X: 2*256 + 128, Z: 128}, math.Vec3{}, math.Vec3{X: 1})
	for x := 0; x < 4; x++ {
		s.LoadMinmax(terrain.CellKey{X: uint16(x)}, false)
	}

	st := s.Process()
	if st.Submitted != 1 || st.Dropped != 3 {
		t.Fatalf("expected 1 submitted and 3 dropped, got %+v", st)
	}

	req := <-s.queue
	if req.sector != (terrain.CellKey{X: 3}) {
		t.Errorf("expected highest priority sector (3,0) submitted, got %v", req.sector)
	}
	for x := 0; x < 3; x++ {
		if got := s.SectorStatus(terrain.CellKey{X: uint16(x)}); got != StatusUninitialized {
			t.Errorf("dropped sector %d in %v, want Uninitialized", x, got)
		}
	}
	s.trackers[req.index].transition(StatusLoading, StatusUninitialized)
}

func TestStopIO(t *testing.T) {
	layout := terrain.Layout{ChunkSize: 32, RegionSize: 8, WorldRegionsX: 2, WorldRegionsZ: 2, LODLevels: 4}
	dir := t.TempDir()
	for _, r := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		writeRegion(t, dir, layout, r[0], r[1], 4)
	}

	s := newTestStorage(t, DefaultConfig(dir), layout)
	if _, err := s.LoadHeaders(context.Background()); err != nil {
		t.Fatalf("LoadHeaders: %v", err)
	}

	for i := 0; i < layout.SectorCount(); i++ {
		s.LoadMinmax(layout.SectorAt(i), true)
	}
	s.Process()
	s.LoadMinmax(terrain.CellKey{}, true)
	s.StopIO()

	if s.running {
		t.Error("worker still marked running after StopIO")
	}
	if len(s.pending) != 0 || len(s.queue) != 0 {
		t.Errorf("expected empty pending set and queue, got %d / %d", len(s.pending), len(s.queue))
	}
	for i := 0; i < layout.SectorCount(); i++ {
		if st := s.SectorStatus(layout.SectorAt(i)); st == StatusLoading {
			t.Errorf("sector %d left Loading after StopIO", i)
		}
	}

	// Sectors come back after a restart.
	for i := 0; i < layout.SectorCount(); i++ {
		s.LoadMinmax(layout.SectorAt(i), true)
	}
	s.Process()
	for i := 0; i < layout.SectorCount(); i++ {
		waitStatus(t, s, layout.SectorAt(i), StatusLoaded)
	}
}
