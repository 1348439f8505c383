// Package experiment assembles full training runs from declarative YAML
// configuration: synthetic task data, the reference model and generator, the
// checkpoint store, and the scheduler.
package experiment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
	"github.com/elliottower/brain-inspired-replay/internal/infrastructure/reference"
)

// DataConfig describes the synthetic task sequence.
type DataConfig struct {
	// Tasks is the number of tasks in the sequence.
	Tasks int `json:"tasks" yaml:"tasks"`

	// SamplesPerClass is the per-class sample count in each task dataset.
	SamplesPerClass int `json:"samplesPerClass" yaml:"samplesPerClass"`

	// InputDim is the input vector width.
	InputDim int `json:"inputDim" yaml:"inputDim"`

	// Noise is the cluster standard deviation.
	Noise float64 `json:"noise" yaml:"noise"`

	// Seed seeds dataset generation.
	Seed int64 `json:"seed" yaml:"seed"`
}

// StoreConfig describes checkpoint persistence. An empty path disables the
// store entirely.
type StoreConfig struct {
	// DBPath is the SQLite database path; ":memory:" keeps it in memory.
	DBPath string `json:"dbPath" yaml:"dbPath"`

	// MaxCheckpointsPerRun caps retained checkpoints per run.
	MaxCheckpointsPerRun int `json:"maxCheckpointsPerRun" yaml:"maxCheckpointsPerRun"`
}

// EvalConfig controls periodic accuracy evaluation during training.
type EvalConfig struct {
	// Every evaluates each task's accuracy every N model iterations; zero
	// evaluates only at run end.
	Every int `json:"every" yaml:"every"`

	// Samples caps the per-task samples used for evaluation; zero uses all.
	Samples int `json:"samples" yaml:"samples"`
}

// Config is the complete declarative description of one run.
type Config struct {
	Training  domainTraining.Config       `json:"training" yaml:"training"`
	Model     reference.LinearModelConfig `json:"model" yaml:"model"`
	Generator *reference.GeneratorConfig  `json:"generator,omitempty" yaml:"generator,omitempty"`
	Data      DataConfig                  `json:"data" yaml:"data"`
	Store     StoreConfig                 `json:"store" yaml:"store"`
	Eval      EvalConfig                  `json:"eval" yaml:"eval"`
}

// DefaultConfig returns a small but complete run: three two-class tasks in
// the class-incremental scenario with curated generative replay.
func DefaultConfig() Config {
	training := domainTraining.DefaultConfig()
	training.ReplayMode = domainTraining.ReplayGenerative
	training.Scenario = domainTraining.ScenarioClass
	training.SampleMethod = domainTraining.SampleCurated
	training.ClassesPerTask = 2
	training.Iters = 200

	model := reference.DefaultLinearModelConfig()
	generator := reference.DefaultGeneratorConfig()

	return Config{
		Training:  training,
		Model:     model,
		Generator: &generator,
		Data: DataConfig{
			Tasks:           3,
			SamplesPerClass: 200,
			InputDim:        model.InputDim,
			Noise:           0.4,
		},
		Store: StoreConfig{
			DBPath:               ":memory:",
			MaxCheckpointsPerRun: 100,
		},
		Eval: EvalConfig{
			Every:   100,
			Samples: 200,
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the assembled config for consistency across sections.
func (c Config) Validate() error {
	if err := c.Training.Validate(); err != nil {
		return err
	}
	if c.Data.Tasks < 1 {
		return fmt.Errorf("data.tasks must be >= 1, got %d", c.Data.Tasks)
	}
	if c.Data.SamplesPerClass < 1 {
		return fmt.Errorf("data.samplesPerClass must be >= 1, got %d", c.Data.SamplesPerClass)
	}
	if c.Data.InputDim != c.Model.InputDim {
		return fmt.Errorf("data.inputDim %d does not match model.inputDim %d", c.Data.InputDim, c.Model.InputDim)
	}
	classes := c.Training.ClassesPerTask * c.Data.Tasks
	if c.Training.Scenario == domainTraining.ScenarioDomain {
		classes = c.Training.ClassesPerTask
	}
	if c.Model.Classes < classes {
		return fmt.Errorf("model.classes %d cannot hold %d tasks of %d classes", c.Model.Classes, c.Data.Tasks, c.Training.ClassesPerTask)
	}
	if c.Generator != nil {
		if c.Generator.InputDim != c.Model.InputDim {
			return fmt.Errorf("generator.inputDim %d does not match model.inputDim %d", c.Generator.InputDim, c.Model.InputDim)
		}
		if c.Generator.Classes < classes {
			return fmt.Errorf("generator.classes %d cannot hold %d tasks of %d classes", c.Generator.Classes, c.Data.Tasks, c.Training.ClassesPerTask)
		}
		if c.Generator.ClassesPerTask != c.Training.ClassesPerTask {
			return fmt.Errorf("generator.classesPerTask %d does not match training.classesPerTask %d", c.Generator.ClassesPerTask, c.Training.ClassesPerTask)
		}
	}
	if c.Training.ReplayMode == domainTraining.ReplayGenerative && c.Generator == nil && !c.Training.Feedback {
		return fmt.Errorf("generative replay requires a generator section")
	}
	return nil
}

// Datasets builds the task sequence described by the data section. Task t
// covers global classes [classesPerTask*(t-1), classesPerTask*t); the domain
// scenario reuses classes [0, classesPerTask) in every task with a different
// sampling seed per task.
func (c Config) Datasets() ([]domainTraining.Dataset, error) {
	out := make([]domainTraining.Dataset, c.Data.Tasks)
	for t := 0; t < c.Data.Tasks; t++ {
		base := c.Training.ClassesPerTask * t
		if c.Training.Scenario == domainTraining.ScenarioDomain {
			base = 0
		}
		classes := make([]int, c.Training.ClassesPerTask)
		for i := range classes {
			classes[i] = base + i
		}
		ds, err := reference.NewClusterTask(classes, c.Data.SamplesPerClass, c.Data.InputDim, c.Data.Noise, c.Data.Seed+int64(t))
		if err != nil {
			return nil, fmt.Errorf("failed to build task %d dataset: %w", t+1, err)
		}
		out[t] = ds
	}
	return out, nil
}
