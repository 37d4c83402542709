package config

import (
	"github.com/Faultbox/terrainer/internal/lod"
	"github.com/Faultbox/terrainer/internal/streaming"
)

// Selector returns the LOD selector settings.
func (c *Config) Selector() lod.Config {
	t := c.Terrain
	return lod.Config{
		ChunkSize:       t.ChunkSize,
		MapScale:        t.MapScale,
		MapOffset:       t.MapOffset,
		WorldChunksX:    t.WorldRegionsX * t.RegionSize,
		WorldChunksZ:    t.WorldRegionsZ * t.RegionSize,
		DistanceRatio:   c.LOD.DistanceRatio,
		MorphStartRatio: c.LOD.MorphStartRatio,
	}
}

// Storage returns the streaming storage settings.
func (c *Config) Storage() streaming.Config {
	s := c.Streaming
	return streaming.Config{
		Dir:                c.Terrain.Dir,
		Locked:             c.Terrain.Locked,
		MapScale:           c.Terrain.MapScale,
		MapOffset:          c.Terrain.MapOffset,
		QueueSize:          s.QueueSize,
		PoolBlocks:         s.PoolBlocks,
		ScanConcurrency:    s.ScanConcurrency,
		PredictionTime:     s.PredictionTime,
		KDistance:          s.KDistance,
		HalfDecay:          s.HalfDecay,
		FrustumBonus:       s.FrustumBonus,
		HeadingBoost:       s.HeadingBoost,
		StaleFrames:        s.StaleFrames,
		RetryBackoffFrames: s.RetryBackoffFrames,
		EvictLowWater:      s.EvictLowWater,
		EvictMinIdleFrames: s.EvictMinIdleFrames,
	}
}
