// Package config handles terrain configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Faultbox/terrainer/internal/terrain"
	"github.com/Faultbox/terrainer/pkg/math"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all terrain settings.
type Config struct {
	Terrain   TerrainConfig   `yaml:"terrain"`
	LOD       LODConfig       `yaml:"lod"`
	Streaming StreamingConfig `yaml:"streaming"`
	Logging   LoggingConfig   `yaml:"logging"`
	Trace     TraceConfig     `yaml:"trace"`
}

// TerrainConfig describes the region store and world geometry.
type TerrainConfig struct {
	Dir           string    `yaml:"dir"`    // Directory holding region_<x>_<z>.bin files
	Locked        bool      `yaml:"locked"` // Open regions read-only
	ChunkSize     int       `yaml:"chunk_size"`
	RegionSize    int       `yaml:"region_size"`
	WorldRegionsX int       `yaml:"world_regions_x"`
	WorldRegionsZ int       `yaml:"world_regions_z"`
	MapScale      math.Vec3 `yaml:"map_scale"`
	MapOffset     math.Vec3 `yaml:"map_offset"`
}

// LODConfig holds selection settings.
type LODConfig struct {
	FarView              float32 `yaml:"far_view"`
	DetailedChunksRadius float32 `yaml:"detailed_chunks_radius"`
	DistanceRatio        float32 `yaml:"distance_ratio"`
	MorphStartRatio      float32 `yaml:"morph_start_ratio"`
}

// StreamingConfig holds I/O scheduling and cache settings.
type StreamingConfig struct {
	QueueSize          int           `yaml:"queue_size"`
	PoolBlocks         int           `yaml:"pool_blocks"`
	ScanConcurrency    int           `yaml:"scan_concurrency"`
	PredictionTime     time.Duration `yaml:"prediction_time"`
	KDistance          float32       `yaml:"k_distance"`
	HalfDecay          float32       `yaml:"half_decay"`
	FrustumBonus       float32       `yaml:"frustum_bonus"`
	HeadingBoost       float32       `yaml:"heading_boost"`
	StaleFrames        uint64        `yaml:"stale_frames"`
	RetryBackoffFrames uint64        `yaml:"retry_backoff_frames"`
	EvictLowWater      int           `yaml:"evict_low_water"`
	EvictMinIdleFrames uint64        `yaml:"evict_min_idle_frames"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// TraceConfig controls the per-frame selection trace.
type TraceConfig struct {
	Path  string `yaml:"path"`  // Empty disables tracing
	Level int    `yaml:"level"` // zstd level, 1 (fastest) to 4 (best)
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Terrain: TerrainConfig{
			Dir:           "terrain",
			ChunkSize:     32,
			RegionSize:    64,
			WorldRegionsX: 4,
			WorldRegionsZ: 4,
			MapScale:      math.Vec3{X: 1, Y: 1, Z: 1},
		},
		LOD: LODConfig{
			FarView:              2000,
			DetailedChunksRadius: 4,
			DistanceRatio:        2,
			MorphStartRatio:      0.70,
		},
		Streaming: StreamingConfig{
			QueueSize:          64,
			PoolBlocks:         256,
			ScanConcurrency:    4,
			PredictionTime:     500 * time.Millisecond,
			KDistance:          1000,
			HalfDecay:          512,
			FrustumBonus:       2,
			HeadingBoost:       1,
			StaleFrames:        120,
			RetryBackoffFrames: 60,
			EvictLowWater:      16,
			EvictMinIdleFrames: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Trace: TraceConfig{
			Level: 1,
		},
	}
}

// Validate checks the config and snaps chunk and region sizes to powers of
// two, rounding toward the default.
func (c *Config) Validate() error {
	def := Default()

	t := &c.Terrain
	t.ChunkSize = terrain.RoundPowerOfTwo(t.ChunkSize, def.Terrain.ChunkSize)
	t.RegionSize = terrain.RoundPowerOfTwo(t.RegionSize, def.Terrain.RegionSize)

	switch {
	case t.WorldRegionsX <= 0 || t.WorldRegionsZ <= 0:
		return fmt.Errorf("%w: world extent %dx%d regions", ErrInvalidConfig, t.WorldRegionsX, t.WorldRegionsZ)
	case t.MapScale.X <= 0 || t.MapScale.Y <= 0 || t.MapScale.Z <= 0:
		return fmt.Errorf("%w: map scale %v must be positive", ErrInvalidConfig, t.MapScale)
	case c.LOD.FarView <= 0:
		return fmt.Errorf("%w: far view %v", ErrInvalidConfig, c.LOD.FarView)
	case c.LOD.DetailedChunksRadius <= 0:
		return fmt.Errorf("%w: detailed chunks radius %v", ErrInvalidConfig, c.LOD.DetailedChunksRadius)
	case c.LOD.DistanceRatio < 1:
		return fmt.Errorf("%w: distance ratio %v is below 1", ErrInvalidConfig, c.LOD.DistanceRatio)
	case c.LOD.MorphStartRatio <= 0 || c.LOD.MorphStartRatio >= 1:
		return fmt.Errorf("%w: morph start ratio %v", ErrInvalidConfig, c.LOD.MorphStartRatio)
	case c.Streaming.QueueSize <= 0 || c.Streaming.PoolBlocks <= 0:
		return fmt.Errorf("%w: queue size %d, pool blocks %d", ErrInvalidConfig, c.Streaming.QueueSize, c.Streaming.PoolBlocks)
	case c.Streaming.HalfDecay <= 0:
		return fmt.Errorf("%w: half decay %v", ErrInvalidConfig, c.Streaming.HalfDecay)
	case c.Trace.Level < 1 || c.Trace.Level > 4:
		return fmt.Errorf("%w: trace level %d", ErrInvalidConfig, c.Trace.Level)
	}

	if c.Streaming.ScanConcurrency <= 0 {
		c.Streaming.ScanConcurrency = 1
	}
	return nil
}

// Layout returns the world layout for the given number of LOD levels.
func (t TerrainConfig) Layout(lodLevels int) terrain.Layout {
	return terrain.Layout{
		ChunkSize:     t.ChunkSize,
		RegionSize:    t.RegionSize,
		WorldRegionsX: t.WorldRegionsX,
		WorldRegionsZ: t.WorldRegionsZ,
		LODLevels:     lodLevels,
	}
}
