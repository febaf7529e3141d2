package config

import "sort"

var presets = map[string]func(*Config){
	"default": func(*Config) {},
	"helix-small": func(c *Config) {
		c.Structure.Atoms = 8
		c.Lattice.Extents = [3]int{24, 24, 24}
		c.Lattice.Origin = [3]float64{-12, -12, -6}
	},
	"helix-long": func(c *Config) {
		c.Structure.Atoms = 40
		c.Lattice.Extents = [3]int{32, 32, 72}
		c.Lattice.Origin = [3]float64{-16, -16, -6}
		c.Run.Steps = 400
	},
	"inner-product": func(c *Config) {
		c.Fitting.Similarity = "inner-product"
		c.Fitting.ForceConstant = 5e5
	},
	"relative-entropy": func(c *Config) {
		c.Fitting.Similarity = "relative-entropy"
		c.Fitting.ForceConstant = 50
	},
	"distributed": func(c *Config) {
		c.Run.Ranks = 4
		c.Run.Partition = "round-robin"
		c.Run.Rebalance = 50
	},
	"dynamics": func(c *Config) {
		c.Run.Integrator = "verlet"
		c.Run.Dt = 0.02
		c.Run.Friction = 1.0
		c.Run.Steps = 1000
		c.Fitting.Every = 2
	},
	"coarse-grid": func(c *Config) {
		c.Lattice.VoxelSize = [3]float64{2, 2, 2}
		c.Lattice.Extents = [3]int{16, 16, 16}
		c.Fitting.SpreadWidth = 2.5
	},
}

// GetPreset returns the default configuration with the named preset applied,
// or nil when no preset has that name.
func GetPreset(name string) *Config {
	apply, ok := presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
