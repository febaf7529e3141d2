package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/densfit/internal/amplitude"
	"github.com/san-kum/densfit/internal/atomset"
	"github.com/san-kum/densfit/internal/densityfit"
	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/grid"
	"github.com/san-kum/densfit/internal/lattice"
	"github.com/san-kum/densfit/internal/measure"
)

const (
	DefaultSpreadWidth   = 1.5
	DefaultRange         = 4.0
	DefaultForceConstant = 500.0
	DefaultVoxel         = 1.0
	DefaultExtent        = 32
	DefaultAtoms         = 16
	DefaultRadius        = 2.3
	DefaultRise          = 1.5
	DefaultTurn          = 100.0
	DefaultPerturb       = 0.8
	DefaultDt            = 0.01
	DefaultSteps         = 200
	DefaultMaxStep       = 0.1
	DefaultFriction      = 0.5
)

type Config struct {
	Fitting   FittingConfig   `yaml:"fitting"`
	Lattice   LatticeConfig   `yaml:"lattice"`
	Structure StructureConfig `yaml:"structure"`
	Run       RunConfig       `yaml:"run"`
	Output    OutputConfig    `yaml:"output"`
}

type FittingConfig struct {
	SpreadWidth        float64 `yaml:"spread_width"`
	SpreadRangeInSigma float64 `yaml:"spread_range_in_sigma"`
	Similarity         string  `yaml:"similarity"`
	Amplitudes         string  `yaml:"amplitudes"`
	ForceConstant      float64 `yaml:"force_constant"`
	Every              int64   `yaml:"every"`
}

// LatticeConfig places the density grid in lab coordinates. Cell (0,0,0)
// sits at Origin.
type LatticeConfig struct {
	VoxelSize [3]float64 `yaml:"voxel_size"`
	Origin    [3]float64 `yaml:"origin"`
	Extents   [3]int     `yaml:"extents"`
}

// StructureConfig describes the target structure. Particles, when set, names
// a CSV file; otherwise a helix of Atoms particles is generated. The starting
// structure is the target displaced by Perturb.
type StructureConfig struct {
	Particles string  `yaml:"particles,omitempty"`
	Atoms     int     `yaml:"atoms"`
	Radius    float64 `yaml:"radius"`
	Rise      float64 `yaml:"rise"`
	Turn      float64 `yaml:"turn_degrees"`
	Perturb   float64 `yaml:"perturb"`
}

type RunConfig struct {
	Integrator string  `yaml:"integrator"`
	Dt         float64 `yaml:"dt"`
	Steps      int64   `yaml:"steps"`
	MaxStep    float64 `yaml:"max_step"`
	Friction   float64 `yaml:"friction"`
	Ranks      int     `yaml:"ranks"`
	Partition  string  `yaml:"partition"`
	Rebalance  int64   `yaml:"rebalance"`
	Parallel   int     `yaml:"parallel_chunk"`
	Seed       int64   `yaml:"seed"`
}

type OutputConfig struct {
	DataDir string `yaml:"data_dir"`
}

func DefaultConfig() *Config {
	return &Config{
		Fitting: FittingConfig{
			SpreadWidth:        DefaultSpreadWidth,
			SpreadRangeInSigma: DefaultRange,
			Similarity:         measure.CrossCorrelation.String(),
			Amplitudes:         amplitude.Unity.String(),
			ForceConstant:      DefaultForceConstant,
			Every:              1,
		},
		Lattice: LatticeConfig{
			VoxelSize: [3]float64{DefaultVoxel, DefaultVoxel, DefaultVoxel},
			Origin:    [3]float64{-DefaultExtent / 2, -DefaultExtent / 2, -4},
			Extents:   [3]int{DefaultExtent, DefaultExtent, DefaultExtent},
		},
		Structure: StructureConfig{
			Atoms:   DefaultAtoms,
			Radius:  DefaultRadius,
			Rise:    DefaultRise,
			Turn:    DefaultTurn,
			Perturb: DefaultPerturb,
		},
		Run: RunConfig{
			Integrator: "steepest-descent",
			Dt:         DefaultDt,
			Steps:      DefaultSteps,
			MaxStep:    DefaultMaxStep,
			Friction:   DefaultFriction,
			Ranks:      1,
			Partition:  atomset.Block.String(),
			Seed:       1,
		},
		Output: OutputConfig{DataDir: "data"},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if _, err := c.Parameters(); err != nil {
		return fmt.Errorf("fitting: %w", err)
	}
	if _, err := c.Transform(); err != nil {
		return fmt.Errorf("lattice: %w", err)
	}
	if err := c.GridExtents().Validate(); err != nil {
		return fmt.Errorf("lattice: %w", err)
	}
	if c.Structure.Particles == "" && c.Structure.Atoms < 1 {
		return fmt.Errorf("structure: %w: need at least one atom, got %d", dynamo.ErrInvalidParameter, c.Structure.Atoms)
	}
	if c.Structure.Perturb < 0 {
		return fmt.Errorf("structure: %w: negative perturbation %g", dynamo.ErrInvalidParameter, c.Structure.Perturb)
	}

	switch c.Run.Integrator {
	case "steepest-descent":
		if !(c.Run.MaxStep > 0) {
			return fmt.Errorf("run: %w: max_step must be positive", dynamo.ErrInvalidParameter)
		}
	case "verlet":
		if !(c.Run.Dt > 0) {
			return fmt.Errorf("run: %w: dt must be positive", dynamo.ErrInvalidParameter)
		}
		if c.Run.Friction < 0 {
			return fmt.Errorf("run: %w: negative friction %g", dynamo.ErrInvalidParameter, c.Run.Friction)
		}
	default:
		return fmt.Errorf("run: %w: integrator %q", dynamo.ErrUnknownMethod, c.Run.Integrator)
	}
	if c.Run.Steps < 0 {
		return fmt.Errorf("run: %w: negative step count %d", dynamo.ErrInvalidParameter, c.Run.Steps)
	}
	if c.Run.Ranks < 1 {
		return fmt.Errorf("run: %w: ranks must be at least 1, got %d", dynamo.ErrInvalidParameter, c.Run.Ranks)
	}
	if c.Run.Rebalance < 0 {
		return fmt.Errorf("run: %w: negative rebalance interval %d", dynamo.ErrInvalidParameter, c.Run.Rebalance)
	}
	if _, err := atomset.ParseStrategy(c.Run.Partition); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

// Parameters converts the fitting section into provider parameters.
func (c *Config) Parameters() (densityfit.Parameters, error) {
	sim, err := measure.ParseMethod(c.Fitting.Similarity)
	if err != nil {
		return densityfit.Parameters{}, err
	}
	amp, err := amplitude.ParseMethod(c.Fitting.Amplitudes)
	if err != nil {
		return densityfit.Parameters{}, err
	}
	p := densityfit.Parameters{
		SpreadWidth:        c.Fitting.SpreadWidth,
		SpreadRangeInSigma: c.Fitting.SpreadRangeInSigma,
		SimilarityMethod:   sim,
		AmplitudeMethod:    amp,
		ForceConstant:      c.Fitting.ForceConstant,
		Every:              c.Fitting.Every,
	}
	return p, p.Validate()
}

// Transform is the lab to lattice transform of the density grid.
func (c *Config) Transform() (lattice.TranslateAndScale, error) {
	return lattice.FromVoxelSize(dynamo.Vec3(c.Lattice.VoxelSize), dynamo.Vec3(c.Lattice.Origin))
}

func (c *Config) GridExtents() grid.Extents {
	return grid.Extents(c.Lattice.Extents)
}

func (c *Config) PartitionStrategy() atomset.Strategy {
	s, _ := atomset.ParseStrategy(c.Run.Partition)
	return s
}
