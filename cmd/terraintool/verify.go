package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/zap"

	"github.com/Faultbox/terrainer/internal/config"
	"github.com/Faultbox/terrainer/internal/lod"
	"github.com/Faultbox/terrainer/internal/logger"
	"github.com/Faultbox/terrainer/internal/streaming"
	"github.com/Faultbox/terrainer/internal/terrain"
	"github.com/Faultbox/terrainer/pkg/region"
)

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	repair := fs.Bool("repair", false, "Rebuild inconsistent coarse levels from level 0")
	cfg := setup(fs, flags, args)
	defer logger.Sync()

	if *repair && cfg.Terrain.Locked {
		fatalf("Error: -repair needs a writable store, remove -locked")
	}

	tree := lod.New(cfg.Selector())
	if err := tree.SetLODLevels(cfg.LOD.FarView, cfg.LOD.DetailedChunksRadius); err != nil {
		fatalf("Error: %v", err)
	}
	store, err := streaming.New(cfg.Storage(), cfg.Terrain.Layout(tree.LODLevels()))
	if err != nil {
		fatalf("Error: %v", err)
	}
	report, err := store.LoadHeaders(context.Background())
	store.Close()
	if err != nil {
		fatalf("Error: %v", err)
	}

	fmt.Printf("Directory: %s\n", cfg.Terrain.Dir)
	fmt.Printf("Accepted:  %d\n", report.Accepted)
	fmt.Printf("Skipped:   %d\n", len(report.Skipped))
	for _, issue := range report.Skipped {
		fmt.Printf("  %-28s %v\n", issue.File, issue.Err)
	}

	skipped := make(map[string]bool, len(report.Skipped))
	for _, issue := range report.Skipped {
		skipped[issue.File] = true
	}
	entries, err := os.ReadDir(cfg.Terrain.Dir)
	if err != nil {
		fatalf("Error: %v", err)
	}
	var names []string
	for _, e := range entries {
		if _, _, ok := region.ParseFileName(e.Name()); ok && !e.IsDir() && !skipped[e.Name()] {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	bad := 0
	for _, name := range names {
		path := filepath.Join(cfg.Terrain.Dir, name)
		levels, err := checkPyramid(path, *repair)
		switch {
		case err != nil:
			fmt.Printf("  %-28s %v\n", name, err)
			bad++
		case len(levels) > 0 && *repair:
			fmt.Printf("  %-28s repaired levels %v\n", name, levels)
		case len(levels) > 0:
			fmt.Printf("  %-28s inconsistent levels %v\n", name, levels)
			bad++
		}
	}

	logger.Info("verify finished",
		zap.String("dir", cfg.Terrain.Dir),
		zap.Int("checked", len(names)),
		zap.Int("bad", bad))
	if bad > 0 || len(report.Skipped) > 0 {
		os.Exit(1)
	}
	fmt.Println("OK")
}

// checkPyramid compares every coarse level of a region with the 2x2
// reduction of the level below it and returns the levels that differ. With
// repair set, those levels are rewritten.
func checkPyramid(path string, repair bool) ([]int, error) {
	r, err := region.Open(path, !repair)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	h := r.Header
	data, err := r.ReadMinmax()
	if err != nil {
		return nil, err
	}
	shape := terrain.PyramidShape{Size: int(h.RegionSize), Levels: h.LODs}

	level0 := shape.Level(data, 0)
	for i := 0; i+1 < len(level0); i += 2 {
		if level0[i] > level0[i+1] {
			return nil, fmt.Errorf("level 0 entry %d has min %d above max %d", i/2, level0[i], level0[i+1])
		}
	}

	var bad []int
	want := make([]uint16, shape.Len())
	copy(want, data)
	for lod := 1; lod < h.LODs; lod++ {
		size := shape.LevelSize(lod)
		expect := shape.Level(want, lod)
		terrain.Reduce2x2(expect, shape.Level(want, lod-1), size)
		if slices.Equal(expect, shape.Level(data, lod)) {
			continue
		}
		bad = append(bad, lod)
		if repair {
			if err := r.WriteMinmaxLevel(lod, expect); err != nil {
				return bad, err
			}
		}
	}
	if repair && len(bad) > 0 {
		if err := r.Sync(); err != nil {
			return bad, err
		}
	}
	return bad, nil
}
