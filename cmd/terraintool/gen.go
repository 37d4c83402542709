package main

import (
	"flag"
	"fmt"
	gomath "math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/terrainer/internal/config"
	"github.com/Faultbox/terrainer/internal/logger"
	"github.com/Faultbox/terrainer/internal/terrain"
	"github.com/Faultbox/terrainer/pkg/region"
)

func cmdGen(args []string) {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	lods := fs.Int("lods", 0, "Persisted LOD levels (0 = all the region size allows)")
	seed := fs.Int64("seed", 1, "Height field seed")
	bigEndian := fs.Bool("big-endian", false, "Write big-endian regions")
	saveConfig := fs.Bool("save-config", true, "Write terrain.yaml next to the regions")
	cfg := setup(fs, flags, args)
	defer logger.Sync()

	t := cfg.Terrain
	maxLODs := terrain.Log2(t.RegionSize) + 1
	if *lods <= 0 || *lods > maxLODs {
		*lods = min(maxLODs, region.MaxLODs)
	}

	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		fatalf("Error: %v", err)
	}

	shape := terrain.PyramidShape{Size: t.RegionSize, Levels: *lods}
	buf := make([]uint16, shape.Len())
	for rz := 0; rz < t.WorldRegionsZ; rz++ {
		for rx := 0; rx < t.WorldRegionsX; rx++ {
			for z := 0; z < t.RegionSize; z++ {
				for x := 0; x < t.RegionSize; x++ {
					lo, hi := syntheticChunk(*seed, rx*t.RegionSize+x, rz*t.RegionSize+z)
					shape.SetMinMax(buf, 0, x, z, lo, hi)
				}
			}
			shape.Synthesize(buf, 1)

			h := region.NewHeader(uint32(t.ChunkSize), uint32(t.RegionSize), *lods)
			if *bigEndian {
				h.Endian = region.BigEndian
			}
			path := filepath.Join(t.Dir, region.FileName(rx, rz))
			r, err := region.Create(path, h, buf)
			if err != nil {
				fatalf("Error: %v", err)
			}
			r.Close()
			logger.Debug("region written", zap.String("file", path))
		}
	}

	if *saveConfig {
		if err := cfg.SaveTo(filepath.Join(t.Dir, "terrain.yaml")); err != nil {
			fatalf("Error: %v", err)
		}
	}

	logger.Info("region store generated",
		zap.String("dir", t.Dir),
		zap.Int("regions", t.WorldRegionsX*t.WorldRegionsZ),
		zap.Int("lods", *lods))
	fmt.Printf("Wrote %d regions (%dx%d chunks each, %d LODs) to %s\n",
		t.WorldRegionsX*t.WorldRegionsZ, t.RegionSize, t.RegionSize, *lods, t.Dir)
}

// syntheticChunk returns a chunk's height extent: rolling hills plus
// per-chunk roughness, both fixed by seed.
func syntheticChunk(seed int64, x, z int) (uint16, uint16) {
	fx, fz := float64(x), float64(z)
	base := 24000 +
		9000*gomath.Sin(fx*0.031)*gomath.Cos(fz*0.027) +
		4000*gomath.Sin((fx+fz)*0.113)

	h := mix(uint64(seed) ^ uint64(x)<<32 ^ uint64(uint32(z)))
	rough := 200 + float64(h%1800)
	lo := clampHeight(base - rough)
	hi := clampHeight(base + rough)
	return lo, hi
}

// mix is the splitmix64 finalizer.
func mix(v uint64) uint64 {
	v += 0x9e3779b97f4a7c15
	v = (v ^ v>>30) * 0xbf58476d1ce4e5b9
	v = (v ^ v>>27) * 0x94d049bb133111eb
	return v ^ v>>31
}

func clampHeight(v float64) uint16 {
	return uint16(max(0, min(v, gomath.MaxUint16)))
}
