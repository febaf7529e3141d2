// Package automation runs scripted sequences of fits described in YAML.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/densfit/internal/config"
	"github.com/san-kum/densfit/internal/experiment"
	"github.com/san-kum/densfit/internal/md"
	"github.com/san-kum/densfit/internal/particles"
)

// Scenario defines a scripted sequence of fits.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a config file or a preset, default when neither
// is given, and applies the non-zero overrides.
type ScenarioStep struct {
	Preset        string  `yaml:"preset,omitempty"`
	Config        string  `yaml:"config,omitempty"`
	Similarity    string  `yaml:"similarity,omitempty"`
	Integrator    string  `yaml:"integrator,omitempty"`
	ForceConstant float64 `yaml:"force_constant,omitempty"`
	Steps         int64   `yaml:"steps,omitempty"`
	Ranks         int     `yaml:"ranks,omitempty"`
	Seed          int64   `yaml:"seed,omitempty"`
	SaveAs        string  `yaml:"save_as,omitempty"`
}

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Name   string
	Config *config.Config
	Target *particles.Set
	Result *md.Result
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}

	return &scenario, nil
}

// Resolve builds the configuration for the step.
func (s ScenarioStep) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Config != "":
		c, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		cfg = c
	case s.Preset != "":
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", s.Preset)
		}
	default:
		cfg = config.DefaultConfig()
	}

	if s.Similarity != "" {
		cfg.Fitting.Similarity = s.Similarity
	}
	if s.Integrator != "" {
		cfg.Run.Integrator = s.Integrator
	}
	if s.ForceConstant != 0 {
		cfg.Fitting.ForceConstant = s.ForceConstant
	}
	if s.Steps != 0 {
		cfg.Run.Steps = s.Steps
	}
	if s.Ranks != 0 {
		cfg.Run.Ranks = s.Ranks
	}
	if s.Seed != 0 {
		cfg.Run.Seed = s.Seed
	}
	return cfg, cfg.Validate()
}

func (s ScenarioStep) name(scenario string, i int) string {
	if s.SaveAs != "" {
		return s.SaveAs
	}
	if scenario == "" {
		scenario = "scenario"
	}
	return fmt.Sprintf("%s-%d", scenario, i+1)
}

// RunScenario executes all steps in a scenario. On failure the results of
// the completed steps are returned with the error.
func RunScenario(ctx context.Context, scenario *Scenario, logger *slog.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		name := step.name(scenario.Name, i)
		logger.Info("scenario step", "step", i+1, "of", len(scenario.Steps), "name", name)

		cfg, err := step.Resolve()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		exp, err := experiment.New(cfg, logger.With("step", name))
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, StepResult{Name: name, Config: cfg, Target: exp.Target, Result: result})
	}

	return results, nil
}
