package streaming

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/terrainer/internal/terrain"
	"github.com/Faultbox/terrainer/pkg/region"
)

// ScanIssue is a region file rejected by LoadHeaders.
type ScanIssue struct {
	File string
	Err  error
}

// ScanReport summarises a LoadHeaders call.
type ScanReport struct {
	Accepted int
	Skipped  []ScanIssue
}

// LoadHeaders scans the region directory and opens every region file in
// the world extent. Files that fail validation are skipped and reported.
// Calling it again stops I/O, evicts all sectors and replaces the region
// set.
func (s *Storage) LoadHeaders(ctx context.Context) (*ScanReport, error) {
	if s.closed {
		return nil, ErrClosed
	}

	dir := s.cfg.Dir
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadDirectory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrBadDirectory, dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadDirectory, err)
	}

	s.Clear()

	report := &ScanReport{}
	minLODs := 0
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ScanConcurrency)

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		x, z, ok := region.ParseFileName(name)
		if !ok {
			continue
		}
		if x >= s.layout.WorldRegionsX || z >= s.layout.WorldRegionsZ {
			report.Skipped = append(report.Skipped, ScanIssue{
				File: name,
				Err:  fmt.Errorf("%w: region (%d,%d) outside %dx%d world", errRegionMismatch, x, z, s.layout.WorldRegionsX, s.layout.WorldRegionsZ),
			})
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := s.openRegion(filepath.Join(dir, name))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Skipped = append(report.Skipped, ScanIssue{File: name, Err: err})
				return nil
			}
			s.regions.Store(terrain.CellKey{X: uint16(x), Z: uint16(z)}, r)
			report.Accepted++
			if minLODs == 0 || r.Header.LODs < minLODs {
				minLODs = r.Header.LODs
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.closeRegions()
		return nil, err
	}

	slices.SortFunc(report.Skipped, func(a, b ScanIssue) int {
		return strings.Compare(a.File, b.File)
	})
	for _, issue := range report.Skipped {
		s.log.Warn("skipping region file", zap.String("file", issue.File), zap.Error(issue.Err))
	}

	s.nregions = report.Accepted
	s.regionLODs = minLODs
	s.markBackedSectors()

	s.log.Info("region headers loaded",
		zap.String("dir", dir),
		zap.Int("regions", report.Accepted),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("persisted_lods", minLODs))
	return report, nil
}

// openRegion opens a region file and checks it against the store layout.
func (s *Storage) openRegion(path string) (*region.Region, error) {
	r, err := region.Open(path, s.cfg.Locked)
	if err != nil {
		return nil, err
	}

	h := r.Header
	switch {
	case int(h.ChunkSize) != s.layout.ChunkSize:
		err = fmt.Errorf("%w: chunk size %d, want %d", errRegionMismatch, h.ChunkSize, s.layout.ChunkSize)
	case int(h.RegionSize) != s.layout.RegionSize:
		err = fmt.Errorf("%w: region size %d, want %d", errRegionMismatch, h.RegionSize, s.layout.RegionSize)
	case !h.HasMinmax():
		err = region.ErrNoMinmax
	case s.cfg.RegionLODs > 0 && h.LODs != s.cfg.RegionLODs:
		err = fmt.Errorf("%w: %d LODs, want %d", errRegionMismatch, h.LODs, s.cfg.RegionLODs)
	}
	if err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// markBackedSectors flags every sector that overlaps at least one region.
func (s *Storage) markBackedSectors() {
	sectorSize := s.layout.SectorChunks()
	regionSize := s.layout.RegionSize

	for i := range s.trackers {
		sector := s.layout.SectorAt(i)
		x0, z0 := int(sector.X)*sectorSize, int(sector.Z)*sectorSize

		backed := false
		for rz := z0 / regionSize; !backed && rz*regionSize < z0+sectorSize; rz++ {
			for rx := x0 / regionSize; rx*regionSize < x0+sectorSize; rx++ {
				if s.region(terrain.CellKey{X: uint16(rx), Z: uint16(rz)}) != nil {
					backed = true
					break
				}
			}
		}
		s.trackers[i].hasRegion = backed
	}
}
