// Package training provides domain types for continual-learning training.
package training

import "fmt"

// Scenario is the class/task visibility regime of a continual-learning run.
type Scenario string

const (
	// ScenarioTask is the task-incremental scenario: each task has its own
	// output head and labels are local to the task's class range.
	ScenarioTask Scenario = "task"
	// ScenarioDomain is the domain-incremental scenario: all tasks share one
	// output head over the full class range.
	ScenarioDomain Scenario = "domain"
	// ScenarioClass is the class-incremental scenario: the label space grows
	// as tasks arrive and all classes seen so far compete.
	ScenarioClass Scenario = "class"
)

// ReplayMode selects the forgetting-mitigation strategy used between tasks.
type ReplayMode string

const (
	// ReplayNone trains on each task without any replay.
	ReplayNone ReplayMode = "none"
	// ReplayCurrent replays inputs from the current task's own batch.
	ReplayCurrent ReplayMode = "current"
	// ReplayOffline replays stored examples from all previous tasks.
	ReplayOffline ReplayMode = "offline"
	// ReplayGenerative replays pseudo-samples drawn from a generator trained
	// on previous tasks.
	ReplayGenerative ReplayMode = "generative"
)

// SampleMethod selects the curation policy used for generative replay.
type SampleMethod string

const (
	SampleRandom              SampleMethod = "random"
	SampleUniform             SampleMethod = "uniform"
	SampleSoftmax             SampleMethod = "softmax"
	SampleCurated             SampleMethod = "curated"
	SampleCuratedSoftmax      SampleMethod = "curated_softmax"
	SampleCuratedVariety      SampleMethod = "curated_variety"
	SampleCuratedClassVariety SampleMethod = "curated_classVariety"
	SampleInterfered          SampleMethod = "interfered"
	SampleMisclassified       SampleMethod = "misclassified"
	SampleUniformLarge        SampleMethod = "uniform_large"
	SampleRandomLarge         SampleMethod = "random_large"
)

// OverGenerates reports whether the method draws a candidate pool larger than
// the replay batch and hands it to the curation step.
func (m SampleMethod) OverGenerates() bool {
	switch m {
	case SampleCurated, SampleCuratedSoftmax, SampleCuratedVariety,
		SampleCuratedClassVariety, SampleInterfered, SampleMisclassified,
		SampleUniformLarge, SampleRandomLarge:
		return true
	}
	return false
}

// NeedsVariety reports whether the method requires a per-candidate variety
// score from the generator.
func (m SampleMethod) NeedsVariety() bool {
	switch m {
	case SampleCuratedVariety, SampleCuratedClassVariety, SampleInterfered:
		return true
	}
	return false
}

// ClassBalanced reports whether the curated selection applies the round-robin
// per-class quota. The "large" variants instead shuffle the ranked pool.
func (m SampleMethod) ClassBalanced() bool {
	return m != SampleRandomLarge && m != SampleUniformLarge
}

func (m SampleMethod) valid() bool {
	switch m {
	case SampleRandom, SampleUniform, SampleSoftmax, SampleCurated,
		SampleCuratedSoftmax, SampleCuratedVariety, SampleCuratedClassVariety,
		SampleInterfered, SampleMisclassified, SampleUniformLarge,
		SampleRandomLarge:
		return true
	}
	return false
}

// ReplayTargetMode selects which target a model consumes for replayed samples.
type ReplayTargetMode string

const (
	// TargetsHard uses argmax labels from the previous model.
	TargetsHard ReplayTargetMode = "hard"
	// TargetsSoft uses the previous model's score distributions.
	TargetsSoft ReplayTargetMode = "soft"
)

// Config configures a continual-learning run.
type Config struct {
	// ReplayMode is the forgetting-mitigation strategy.
	ReplayMode ReplayMode `json:"replayMode" yaml:"replayMode"`

	// Scenario is the class/task visibility regime.
	Scenario Scenario `json:"scenario" yaml:"scenario"`

	// SampleMethod is the generative-replay curation policy.
	SampleMethod SampleMethod `json:"sampleMethod" yaml:"sampleMethod"`

	// ClassesPerTask is the number of classes introduced by each task.
	ClassesPerTask int `json:"classesPerTask" yaml:"classesPerTask"`

	// Iters is the number of optimization steps (batches) per task.
	Iters int `json:"iters" yaml:"iters"`

	// GenIters is the number of generator steps per task. Zero trains the
	// generator for Iters steps when a generator is present.
	GenIters int `json:"genIters" yaml:"genIters"`

	// BatchSize is the number of current-task samples per step.
	BatchSize int `json:"batchSize" yaml:"batchSize"`

	// ReplayBatchSize is the number of replayed samples per step. Zero
	// defaults to BatchSize.
	ReplayBatchSize int `json:"replayBatchSize" yaml:"replayBatchSize"`

	// CuratedMultiplier sizes the over-generated candidate pool as
	// ReplayBatchSize*CuratedMultiplier.
	CuratedMultiplier int `json:"curatedMultiplier" yaml:"curatedMultiplier"`

	// VarietyWeight blends the variety score into the curation metric.
	VarietyWeight float64 `json:"varietyWeight" yaml:"varietyWeight"`

	// MIRCoef weights the previous model's cross-entropy inside the
	// "interfered" metric.
	MIRCoef float64 `json:"mirCoef" yaml:"mirCoef"`

	// RNT is the relative weight of the new task in the combined loss. When
	// nil it is derived as 1/task.
	RNT *float64 `json:"rnt,omitempty" yaml:"rnt,omitempty"`

	// Feedback reuses the main model snapshot as the replay generator.
	Feedback bool `json:"feedback" yaml:"feedback"`

	// OnlyLast skips training on every task except the final one.
	OnlyLast bool `json:"onlyLast" yaml:"onlyLast"`

	// FreezeConv is passed through to the model's batch update.
	FreezeConv bool `json:"freezeConv" yaml:"freezeConv"`

	// Reinit reinitializes model and generator parameters at each task start.
	Reinit bool `json:"reinit" yaml:"reinit"`

	// SaveEvery is the checkpoint cadence in iterations. Zero disables
	// checkpointing.
	SaveEvery int `json:"saveEvery" yaml:"saveEvery"`

	// SIEpsilon is the damping term used when folding the path-integral
	// importance estimate.
	SIEpsilon float64 `json:"siEpsilon" yaml:"siEpsilon"`

	// Seed seeds the scheduler's random source.
	Seed int64 `json:"seed" yaml:"seed"`
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() Config {
	return Config{
		ReplayMode:        ReplayNone,
		Scenario:          ScenarioTask,
		SampleMethod:      SampleRandom,
		ClassesPerTask:    2,
		Iters:             2000,
		BatchSize:         32,
		CuratedMultiplier: 4,
		VarietyWeight:     0.5,
		MIRCoef:           0.1,
		SIEpsilon:         0.1,
	}
}

// Validate checks the configuration. All violations are fatal; the scheduler
// refuses to start on an invalid configuration.
func (c Config) Validate() error {
	switch c.ReplayMode {
	case ReplayNone, ReplayCurrent, ReplayOffline, ReplayGenerative:
	default:
		return fmt.Errorf("invalid replay mode: %q", c.ReplayMode)
	}
	switch c.Scenario {
	case ScenarioTask, ScenarioDomain, ScenarioClass:
	default:
		return fmt.Errorf("invalid scenario: %q", c.Scenario)
	}
	if !c.SampleMethod.valid() {
		return fmt.Errorf("invalid sample method: %q", c.SampleMethod)
	}
	if c.SampleMethod != SampleRandom && c.ReplayMode != ReplayGenerative {
		return fmt.Errorf("sample method %q requires generative replay, got replay mode %q",
			c.SampleMethod, c.ReplayMode)
	}
	if c.ClassesPerTask < 1 {
		return fmt.Errorf("classes per task must be >= 1, got %d", c.ClassesPerTask)
	}
	if c.Iters < 1 {
		return fmt.Errorf("iters must be >= 1, got %d", c.Iters)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.ReplayBatchSize < 0 {
		return fmt.Errorf("replay batch size must be >= 0, got %d", c.ReplayBatchSize)
	}
	if c.CuratedMultiplier < 1 {
		return fmt.Errorf("curated multiplier must be >= 1, got %d", c.CuratedMultiplier)
	}
	if c.VarietyWeight < 0 || c.VarietyWeight > 1 {
		return fmt.Errorf("variety weight must be in [0,1], got %g", c.VarietyWeight)
	}
	if c.SaveEvery < 0 {
		return fmt.Errorf("save cadence must be >= 0, got %d", c.SaveEvery)
	}
	return nil
}

// ReplaySize returns the effective replay batch size.
func (c Config) ReplaySize() int {
	if c.ReplayBatchSize > 0 {
		return c.ReplayBatchSize
	}
	return c.BatchSize
}

// RelativeNewTaskWeight returns the configured RNT, or 1/task when unset.
// Task 1 always trains at full weight.
func (c Config) RelativeNewTaskWeight(task int) float64 {
	if c.RNT != nil {
		return *c.RNT
	}
	if task <= 1 {
		return 1
	}
	return 1 / float64(task)
}
