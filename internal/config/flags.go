package config

import "flag"

// Flags holds command-line overrides. Zero values leave the config as is.
type Flags struct {
	Config  string
	Debug   bool
	Dir     string
	FarView float64
	Locked  bool
}

// RegisterFlags binds the shared override flags to fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.Dir, "dir", "", "Region directory")
	fs.Float64Var(&f.FarView, "far-view", 0, "Far view distance")
	fs.BoolVar(&f.Locked, "locked", false, "Open regions read-only")
	return f
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Dir != "" {
		cfg.Terrain.Dir = f.Dir
	}
	if f.FarView > 0 {
		cfg.LOD.FarView = float32(f.FarView)
	}
	if f.Locked {
		cfg.Terrain.Locked = true
	}
}
