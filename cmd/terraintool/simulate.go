package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/terrainer/internal/camera"
	"github.com/Faultbox/terrainer/internal/config"
	"github.com/Faultbox/terrainer/internal/lod"
	"github.com/Faultbox/terrainer/internal/logger"
	"github.com/Faultbox/terrainer/internal/streaming"
	"github.com/Faultbox/terrainer/internal/trace"
	"github.com/Faultbox/terrainer/pkg/math"
)

func cmdSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	frames := fs.Int("frames", 600, "Number of frames to run")
	dt := fs.Duration("dt", time.Second/60, "Frame time")
	realtime := fs.Bool("realtime", false, "Sleep for the frame time between frames")
	mode := fs.String("camera", "orbit", "Camera path: orbit or fly")
	speed := fs.Float64("speed", 200, "Fly camera speed in world units per second")
	stopLOD := fs.Int("stop-lod", 0, "Finest level to select")
	tracePath := fs.String("trace", "", "Write a frame trace to this file (overrides config)")
	traceNodes := fs.Bool("trace-nodes", false, "Include selected nodes in the trace")
	cfg := setup(fs, flags, args)
	defer logger.Sync()

	if *tracePath != "" {
		cfg.Trace.Path = *tracePath
	}

	tree := lod.New(cfg.Selector(), lod.WithLogger(logger.Named("lod")))
	if err := tree.SetLODLevels(cfg.LOD.FarView, cfg.LOD.DetailedChunksRadius); err != nil {
		fatalf("Error: %v", err)
	}
	if *stopLOD < 0 || *stopLOD >= tree.LODLevels() {
		fatalf("Error: -stop-lod must be in [0,%d)", tree.LODLevels())
	}

	store, err := streaming.New(cfg.Storage(), cfg.Terrain.Layout(tree.LODLevels()),
		streaming.WithLogger(logger.Named("streaming")))
	if err != nil {
		fatalf("Error: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := store.LoadHeaders(ctx)
	if err != nil {
		fatalf("Error: %v", err)
	}
	if report.Accepted == 0 {
		fatalf("Error: no usable regions in %s", cfg.Terrain.Dir)
	}

	var tw *trace.Writer
	if cfg.Trace.Path != "" {
		tw, err = trace.Create(cfg.Trace.Path, cfg.Trace.Level)
		if err != nil {
			fatalf("Error: %v", err)
		}
		defer tw.Close()
	}

	cam := newCamera(cfg, *mode, float32(*speed))
	step := float32(dt.Seconds())

	logger.Info("simulation started",
		zap.Int("frames", *frames),
		zap.String("camera", *mode),
		zap.Int("lod_levels", tree.LODLevels()),
		zap.Int("sector_chunks", tree.SectorChunks()),
		zap.Int("regions", report.Accepted))

	var maxReached, peakSelected int
	start := time.Now()
	run := 0
	for ; run < *frames && ctx.Err() == nil; run++ {
		cam.Advance(step)
		pos := cam.Position()
		store.UpdateViewer(pos, cam.Velocity(), cam.Forward())

		res := tree.Select(pos, cam.Frustum(), store, *stopLOD)
		ps := store.Process()

		if res == lod.ResultMaxReached {
			maxReached++
		}
		peakSelected = max(peakSelected, tree.SelectionCount())

		if tw != nil {
			if err := tw.Write(traceFrame(ps.Frame, pos, res, tree, store, *traceNodes)); err != nil {
				fatalf("Error: writing trace: %v", err)
			}
		}
		if *realtime {
			time.Sleep(*dt)
		}
	}
	store.StopIO()

	st := store.Stats()
	fmt.Printf("Frames:        %d in %v\n", run, time.Since(start).Round(time.Millisecond))
	fmt.Printf("LOD levels:    %d (sector %d chunks)\n", tree.LODLevels(), tree.SectorChunks())
	fmt.Printf("Selected:      %d last frame, %d peak\n", tree.SelectionCount(), peakSelected)
	fmt.Printf("Buffer full:   %d frames\n", maxReached)
	fmt.Printf("Resident:      %d sectors\n", st.Loaded)
	fmt.Printf("Requests:      %d submitted, %d dropped, %d evicted\n", st.Submitted, st.Dropped, st.Evicted)
	for _, r := range []streaming.Result{
		streaming.ResultOK,
		streaming.ResultIOError,
		streaming.ResultFormatError,
		streaming.ResultCancelled,
		streaming.ResultOutOfMemory,
	} {
		if n := st.Results[r]; n > 0 {
			fmt.Printf("  %-14s %d\n", r, n)
		}
	}
	fmt.Printf("Pool:          %d/%d blocks\n", st.Pool.Allocated, st.Pool.BlockCount)
}

func newCamera(cfg *config.Config, mode string, speed float32) camera.Viewer {
	t := cfg.Terrain
	chunk := float32(t.ChunkSize)
	world := math.AABB{
		Position: t.MapOffset,
		Size: math.Vec3{
			X: float32(t.WorldRegionsX*t.RegionSize) * chunk * t.MapScale.X,
			Y: 65535 * t.MapScale.Y,
			Z: float32(t.WorldRegionsZ*t.RegionSize) * chunk * t.MapScale.Z,
		},
	}
	lens := camera.DefaultLens(cfg.LOD.FarView)

	switch mode {
	case "orbit":
		c := camera.NewOrbitCamera(world.Center(), 0, lens)
		c.FitToBounds(world)
		return c
	case "fly":
		pos := world.Center()
		pos.Y = t.MapOffset.Y + 40000*t.MapScale.Y
		return camera.NewFlyCamera(pos, 0.6, speed, world, lens)
	default:
		fatalf("Error: unknown camera %q", mode)
		return nil
	}
}

func traceFrame(frame uint64, pos math.Vec3, res lod.Result, tree *lod.QuadTree, store *streaming.Storage, nodes bool) trace.Frame {
	st := store.Stats()
	fr := trace.Frame{
		Frame:     frame,
		Viewer:    [3]float32{pos.X, pos.Y, pos.Z},
		Result:    res.String(),
		Selected:  tree.SelectionCount(),
		PerLevel:  make([]int, tree.LODLevels()),
		MinLOD:    tree.MinSelectedLOD(),
		MaxLOD:    tree.MaxSelectedLOD(),
		Loaded:    st.Loaded,
		Loading:   st.Loading,
		Pending:   st.Pending,
		Submitted: st.Submitted,
		Dropped:   st.Dropped,
		Evicted:   st.Evicted,
	}
	for l := range fr.PerLevel {
		fr.PerLevel[l] = tree.LODNodesCount(l)
	}
	if nodes {
		fr.Nodes = trace.Nodes(tree.Selection())
	}
	return fr
}
