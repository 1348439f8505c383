package experiment

import (
	"context"
	"fmt"

	appTraining "github.com/elliottower/brain-inspired-replay/internal/application/training"
	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
	"github.com/elliottower/brain-inspired-replay/internal/infrastructure/checkpoint"
	"github.com/elliottower/brain-inspired-replay/internal/infrastructure/reference"
)

// TaskAccuracy is one mid-run or final evaluation of a single task.
type TaskAccuracy struct {
	// Task is the evaluated task, 1-based.
	Task int `json:"task"`

	// TrainedTask is the task being trained when the evaluation ran.
	TrainedTask int `json:"trainedTask"`

	// Iteration is the training iteration the evaluation ran at.
	Iteration int `json:"iteration"`

	// Accuracy is the fraction of correctly classified samples.
	Accuracy float64 `json:"accuracy"`
}

// Result summarizes one completed run.
type Result struct {
	// RunID identifies the run in the checkpoint store.
	RunID string `json:"runId"`

	// History holds every evaluation taken during the run, in order.
	History []TaskAccuracy `json:"history"`

	// Final holds the end-of-run accuracy per task, indexed by task-1.
	Final []float64 `json:"final"`

	// Average is the mean of Final.
	Average float64 `json:"average"`
}

// ProgressFunc observes run progress; nil disables reporting.
type ProgressFunc func(p appTraining.Progress)

// Runner owns the assembled collaborators of one run.
type Runner struct {
	cfg       Config
	datasets  []domainTraining.Dataset
	model     *reference.LinearModel
	generator *reference.GaussianGenerator
	store     *checkpoint.Store
	progress  ProgressFunc
}

// NewRunner assembles the run described by the config.
func NewRunner(cfg Config, progress ProgressFunc) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	datasets, err := cfg.Datasets()
	if err != nil {
		return nil, err
	}

	model, err := reference.NewLinearModel(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %w", err)
	}

	r := &Runner{
		cfg:      cfg,
		datasets: datasets,
		model:    model,
		progress: progress,
	}

	if cfg.Generator != nil {
		r.generator, err = reference.NewGaussianGenerator(*cfg.Generator)
		if err != nil {
			return nil, fmt.Errorf("failed to build generator: %w", err)
		}
	}

	if cfg.Store.DBPath != "" {
		storeCfg := checkpoint.DefaultStoreConfig()
		storeCfg.DBPath = cfg.Store.DBPath
		if cfg.Store.MaxCheckpointsPerRun > 0 {
			storeCfg.MaxCheckpointsPerRun = cfg.Store.MaxCheckpointsPerRun
		}
		r.store, err = checkpoint.NewStore(storeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
		}
	}
	return r, nil
}

// Close releases the runner's checkpoint store.
func (r *Runner) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// Run trains the full task sequence and returns the accuracy summary.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	opts := []appTraining.Option{}
	if r.generator != nil {
		opts = append(opts, appTraining.WithGenerator(r.generator))
	}
	if r.store != nil {
		opts = append(opts, appTraining.WithCheckpointStore(r.store))
	}
	if r.progress != nil {
		opts = append(opts, appTraining.WithLossCallback(func(p appTraining.Progress) {
			r.progress(p)
		}))
	}
	if r.cfg.Eval.Every > 0 {
		opts = append(opts, appTraining.WithEvalCallback(func(m domainTraining.Model, iteration, task int) {
			if iteration%r.cfg.Eval.Every != 0 {
				return
			}
			for t := 1; t <= task; t++ {
				acc, err := r.evaluateTask(m, t, task)
				if err != nil {
					continue
				}
				result.History = append(result.History, TaskAccuracy{
					Task:        t,
					TrainedTask: task,
					Iteration:   iteration,
					Accuracy:    acc,
				})
			}
		}))
	}

	scheduler, err := appTraining.New(r.model, r.cfg.Training, opts...)
	if err != nil {
		return nil, err
	}
	result.RunID = scheduler.RunID()

	if err := scheduler.TrainContinual(ctx, r.datasets); err != nil {
		return nil, err
	}

	result.Final = make([]float64, len(r.datasets))
	for t := 1; t <= len(r.datasets); t++ {
		acc, err := r.evaluateTask(r.model, t, len(r.datasets))
		if err != nil {
			return nil, fmt.Errorf("final evaluation of task %d: %w", t, err)
		}
		result.Final[t-1] = acc
		result.Average += acc
	}
	result.Average /= float64(len(r.datasets))
	return result, nil
}

// evaluateTask measures classification accuracy on one task's dataset under
// the run's scenario, with seenTasks tasks trained so far.
func (r *Runner) evaluateTask(m domainTraining.Model, task, seenTasks int) (float64, error) {
	ds := r.datasets[task-1]
	n := ds.Len()
	if r.cfg.Eval.Samples > 0 && n > r.cfg.Eval.Samples {
		n = r.cfg.Eval.Samples
	}
	if n == 0 {
		return 0, fmt.Errorf("empty dataset")
	}

	cpt := r.cfg.Training.ClassesPerTask
	var lo, hi int
	switch r.cfg.Training.Scenario {
	case domainTraining.ScenarioTask:
		lo, hi = cpt*(task-1), cpt*task
		if m.HasTaskMasks() {
			if err := m.ApplyTaskMask(task); err != nil {
				return 0, err
			}
		}
	case domainTraining.ScenarioClass:
		lo, hi = 0, cpt*seenTasks
	default:
		lo, hi = 0, cpt
	}

	inputs := make([][]float64, n)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		inputs[i], labels[i] = ds.Sample(i)
	}

	scores, err := m.Classify(inputs, true)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i, row := range scores {
		if hi > len(row) {
			return 0, fmt.Errorf("score width %d below class range end %d", len(row), hi)
		}
		best := lo
		for c := lo + 1; c < hi; c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		if best == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}
