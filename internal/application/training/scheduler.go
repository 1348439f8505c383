// Package training provides the continual-learning training loop driver.
package training

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
	"github.com/elliottower/brain-inspired-replay/internal/infrastructure/checkpoint"
	infraTraining "github.com/elliottower/brain-inspired-replay/internal/infrastructure/training"
)

// Scheduler drives a model (and optionally a generator) through a sequence
// of tasks, coordinating iterators, replay sampling, curation, target
// labeling, importance tracking and snapshots per the configured strategy.
type Scheduler struct {
	cfg       domainTraining.Config
	model     domainTraining.Model
	generator domainTraining.Generator
	store     *checkpoint.Store
	runID     string
	rng       *rand.Rand

	sampler   *infraTraining.ReplaySampler
	curator   *infraTraining.Curator
	labeler   *infraTraining.Labeler
	snapshots infraTraining.Snapshots

	lossCallbacks    []LossCallback
	evalCallbacks    []EvalCallback
	genLossCallbacks []LossCallback
	sampleCallbacks  []SampleCallback

	stats *SchedulerStats
}

// SchedulerStats contains scheduler statistics.
type SchedulerStats struct {
	TasksCompleted     int   `json:"tasksCompleted"`
	TotalIterations    int64 `json:"totalIterations"`
	TotalGenIterations int64 `json:"totalGenIterations"`
	TotalReplaySamples int64 `json:"totalReplaySamples"`
	TotalCheckpoints   int64 `json:"totalCheckpoints"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithGenerator attaches a separately trained generator.
func WithGenerator(g domainTraining.Generator) Option {
	return func(s *Scheduler) { s.generator = g }
}

// WithCheckpointStore attaches a checkpoint store; checkpoints are written
// on the configured cadence and loss metrics every iteration.
func WithCheckpointStore(store *checkpoint.Store) Option {
	return func(s *Scheduler) { s.store = store }
}

// WithLossCallback registers a callback fired after every completed model
// update, in registration order.
func WithLossCallback(cb LossCallback) Option {
	return func(s *Scheduler) { s.lossCallbacks = append(s.lossCallbacks, cb) }
}

// WithEvalCallback registers an evaluation callback; its cadence is owned by
// the callback itself.
func WithEvalCallback(cb EvalCallback) Option {
	return func(s *Scheduler) { s.evalCallbacks = append(s.evalCallbacks, cb) }
}

// WithGenLossCallback registers a callback fired after generator updates.
func WithGenLossCallback(cb LossCallback) Option {
	return func(s *Scheduler) { s.genLossCallbacks = append(s.genLossCallbacks, cb) }
}

// WithSampleCallback registers a callback fired after generator updates with
// the classes allowed for sampling.
func WithSampleCallback(cb SampleCallback) Option {
	return func(s *Scheduler) { s.sampleCallbacks = append(s.sampleCallbacks, cb) }
}

// New builds a scheduler. The configuration is validated eagerly; a replay
// mode that requires a generator fails here rather than mid-run.
func New(model domainTraining.Model, cfg domainTraining.Config, opts ...Option) (*Scheduler, error) {
	if model == nil {
		return nil, fmt.Errorf("model is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Scheduler{
		cfg:   cfg,
		model: model,
		runID: uuid.New().String(),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		stats: &SchedulerStats{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.ReplayMode == domainTraining.ReplayGenerative && !cfg.Feedback && s.generator == nil {
		return nil, fmt.Errorf("generative replay requires a generator (or feedback mode)")
	}
	if cfg.Feedback && cfg.ReplayMode != domainTraining.ReplayGenerative {
		return nil, fmt.Errorf("feedback mode requires generative replay, got %q", cfg.ReplayMode)
	}

	s.sampler = infraTraining.NewReplaySampler(cfg)
	s.curator = infraTraining.NewCurator(cfg, s.rng)
	s.labeler = infraTraining.NewLabeler(cfg)

	if s.store != nil {
		runID, err := s.store.RegisterRun(cfg)
		if err != nil {
			return nil, fmt.Errorf("registering run: %w", err)
		}
		s.runID = runID
	}
	return s, nil
}

// RunID returns the identifier of this training run.
func (s *Scheduler) RunID() string { return s.runID }

// GetStats returns scheduler statistics.
func (s *Scheduler) GetStats() *SchedulerStats { return s.stats }

// PreviousModel returns the frozen snapshot of the most recently completed
// task's model, nil before the first task boundary.
func (s *Scheduler) PreviousModel() domainTraining.Model { return s.snapshots.Model() }

// Train runs the plain single-dataset loop: iters optimization steps over
// the dataset with callbacks and checkpointing, no task sequence and no
// replay.
func (s *Scheduler) Train(ctx context.Context, data domainTraining.Dataset, iters int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if iters < 1 {
		return fmt.Errorf("iters must be >= 1, got %d", iters)
	}

	plain := s.cfg
	plain.ReplayMode = domainTraining.ReplayNone
	it, err := infraTraining.NewTaskIterators([]domainTraining.Dataset{data}, plain, 1, s.rng)
	if err != nil {
		return err
	}

	perEpoch := data.Len() / s.cfg.BatchSize
	if perEpoch < 1 {
		perEpoch = 1
	}
	for iteration := 1; iteration <= iters; iteration++ {
		batch, err := it.Next()
		if err != nil {
			return fmt.Errorf("iteration %d: %w", iteration, err)
		}

		losses, err := s.model.TrainBatch(domainTraining.BatchInput{
			Inputs:     batch.Inputs,
			Labels:     batch.Labels,
			Task:       1,
			RNT:        1,
			FreezeConv: s.cfg.FreezeConv,
		})
		if err != nil {
			return fmt.Errorf("iteration %d: %w", iteration, err)
		}
		s.stats.TotalIterations++

		s.fireModelCallbacks(Progress{
			RunID:     s.runID,
			Task:      1,
			Epoch:     (iteration-1)/perEpoch + 1,
			Iteration: iteration,
			Losses:    losses,
		})
		if err := s.maybeCheckpoint(1, iteration, losses); err != nil {
			return err
		}
	}
	return nil
}

// TrainContinual trains the model sequentially over the task datasets with
// the configured forgetting-mitigation strategy.
func (s *Scheduler) TrainContinual(ctx context.Context, datasets []domainTraining.Dataset) error {
	if len(datasets) == 0 {
		return fmt.Errorf("no task datasets")
	}

	for task := 1; task <= len(datasets); task++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.runTask(task, datasets); err != nil {
			return fmt.Errorf("task %d: %w", task, err)
		}
		s.stats.TasksCompleted++
	}
	return nil
}

// runTask executes all iterations of one task and its boundary work.
func (s *Scheduler) runTask(task int, datasets []domainTraining.Dataset) error {
	cfg := s.cfg
	generative := cfg.ReplayMode == domainTraining.ReplayGenerative && s.snapshots.Generator() != nil
	currentReplay := cfg.ReplayMode == domainTraining.ReplayCurrent && s.snapshots.Model() != nil

	// Offline replay outside the task scenario trains on one large database
	// of every task so far.
	effective := datasets
	if cfg.ReplayMode == domainTraining.ReplayOffline && cfg.Scenario != domainTraining.ScenarioTask {
		effective = append([]domainTraining.Dataset(nil), datasets...)
		effective[task-1] = domainTraining.Concat(datasets[:task]...)
	}

	it, err := infraTraining.NewTaskIterators(effective, cfg, task, s.rng)
	if err != nil {
		return err
	}
	active := domainTraining.ActiveClassesFor(cfg.Scenario, cfg.ClassesPerTask, task)
	rnt := cfg.RelativeNewTaskWeight(task)

	if cfg.Reinit {
		s.model.Reinit()
		if s.generator != nil {
			s.generator.Reinit()
		}
	}

	var pathIntegral *infraTraining.PathIntegral
	if s.model.SIEnabled() {
		pathIntegral = infraTraining.NewPathIntegral(s.model.Parameters())
	}

	genIters := 0
	if s.generator != nil {
		genIters = cfg.GenIters
		if genIters == 0 {
			genIters = cfg.Iters
		}
	}
	itersToUse := cfg.Iters
	if genIters > itersToUse {
		itersToUse = genIters
	}
	if cfg.OnlyLast && task != len(datasets) {
		itersToUse = 0
	}

	var classVarietyMask [][]float64
	if cfg.SampleMethod == domainTraining.SampleCuratedClassVariety && task > 1 {
		classVarietyMask = infraTraining.BuildClassVarietyMask(
			cfg.ReplaySize()*cfg.CuratedMultiplier, cfg.ClassesPerTask*(task-1))
	}

	perEpoch := effective[task-1].Len() / cfg.BatchSize
	if perEpoch < 1 {
		perEpoch = 1
	}

	for batchIndex := 1; batchIndex <= itersToUse; batchIndex++ {
		var current domainTraining.Batch
		var perTaskBatches []domainTraining.Batch
		if it.Offline() {
			if perTaskBatches, err = it.NextPerTask(); err != nil {
				return fmt.Errorf("iteration %d: %w", batchIndex, err)
			}
		} else {
			if current, err = it.Next(); err != nil {
				return fmt.Errorf("iteration %d: %w", batchIndex, err)
			}
		}

		replay, err := s.buildReplay(current, active, task, rnt, generative, currentReplay, classVarietyMask)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", batchIndex, err)
		}
		s.stats.TotalReplaySamples += int64(replay.Size())

		in := domainTraining.BatchInput{
			Inputs:         current.Inputs,
			Labels:         current.Labels,
			PerTaskBatches: perTaskBatches,
			Replay:         replay,
			Active:         active,
			Task:           task,
			RNT:            rnt,
			FreezeConv:     cfg.FreezeConv,
		}

		if batchIndex <= cfg.Iters {
			losses, err := s.model.TrainBatch(in)
			if err != nil {
				return fmt.Errorf("iteration %d: %w", batchIndex, err)
			}
			s.stats.TotalIterations++

			if pathIntegral != nil {
				if err := pathIntegral.Accumulate(s.model.Gradients(), s.model.Parameters()); err != nil {
					return fmt.Errorf("iteration %d: %w", batchIndex, err)
				}
			}

			s.fireModelCallbacks(Progress{
				RunID:     s.runID,
				Task:      task,
				Epoch:     (batchIndex-1)/perEpoch + 1,
				Iteration: batchIndex,
				Losses:    losses,
			})
			if err := s.maybeCheckpoint(task, batchIndex, losses); err != nil {
				return err
			}
		}

		if s.generator != nil && batchIndex <= genIters {
			genLosses, err := s.generator.TrainBatch(in)
			if err != nil {
				return fmt.Errorf("generator iteration %d: %w", batchIndex, err)
			}
			s.stats.TotalGenIterations++
			s.fireGeneratorCallbacks(Progress{
				RunID:     s.runID,
				Task:      task,
				Iteration: batchIndex,
				Losses:    genLosses,
			}, batchIndex, task)
		}
	}

	return s.finishTask(task, datasets, effective, pathIntegral)
}

// buildReplay assembles the replay batch for one iteration, nil when replay
// is off or no previous task exists yet.
func (s *Scheduler) buildReplay(current domainTraining.Batch, active *domainTraining.ActiveClasses,
	task int, rnt float64, generative, currentReplay bool, classVarietyMask [][]float64,
) (*domainTraining.ReplayBatch, error) {

	switch {
	case currentReplay:
		size := s.cfg.ReplaySize()
		if size > current.Len() {
			size = current.Len()
		}
		candidates := domainTraining.SampleResult{Inputs: current.Inputs[:size]}
		return s.labeler.Label(s.snapshots.Model(), candidates, nil, task, false)

	case generative:
		pool, err := s.sampler.Draw(s.snapshots.Generator(), s.snapshots.Model(), current, task, classVarietyMask)
		if err != nil {
			return nil, err
		}
		if pool.PerTask != nil {
			return s.labeler.Label(s.snapshots.Model(), domainTraining.SampleResult{}, pool.PerTask, task, true)
		}
		selected := pool.Pool
		if pool.NeedsCuration {
			selected, err = s.curator.Curate(pool.Pool, pool.AllowedClasses,
				s.model, s.snapshots.Model(), current, active, task, rnt, true)
			if err != nil {
				return nil, err
			}
		}
		return s.labeler.Label(s.snapshots.Model(), selected, nil, task, true)

	default:
		return nil, nil
	}
}

// finishTask runs the task-boundary work: Fisher estimation, path-integral
// consolidation and snapshot refresh.
func (s *Scheduler) finishTask(task int, datasets, effective []domainTraining.Dataset,
	pathIntegral *infraTraining.PathIntegral) error {

	cfg := s.cfg

	if s.model.EWCEnabled() {
		var allowed []int
		switch cfg.Scenario {
		case domainTraining.ScenarioTask:
			allowed = classRange(cfg.ClassesPerTask*(task-1), cfg.ClassesPerTask*task)
		case domainTraining.ScenarioClass:
			allowed = classRange(0, cfg.ClassesPerTask*task)
		}
		if s.model.HasTaskMasks() {
			if err := s.model.ApplyTaskMask(task); err != nil {
				return fmt.Errorf("applying mask of task %d: %w", task, err)
			}
		}
		if err := s.model.EstimateFisher(effective[task-1], allowed); err != nil {
			return fmt.Errorf("estimating fisher information: %w", err)
		}
	}

	if pathIntegral != nil {
		if err := pathIntegral.Consolidate(s.model, cfg.SIEpsilon); err != nil {
			return err
		}
	}

	return s.snapshots.Refresh(s.model, s.generator,
		cfg.ReplayMode == domainTraining.ReplayGenerative, cfg.Feedback)
}

func (s *Scheduler) maybeCheckpoint(task, iteration int, losses domainTraining.LossReport) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.RecordMetrics(s.runID, task, iteration, losses); err != nil {
		return fmt.Errorf("recording metrics: %w", err)
	}
	if s.cfg.SaveEvery > 0 && iteration%s.cfg.SaveEvery == 0 {
		if _, err := s.store.SaveCheckpoint(s.runID, task, iteration, s.model.Parameters()); err != nil {
			return fmt.Errorf("saving checkpoint: %w", err)
		}
		s.stats.TotalCheckpoints++
	}
	return nil
}

func (s *Scheduler) fireModelCallbacks(p Progress) {
	for _, cb := range s.lossCallbacks {
		cb(p)
	}
	for _, cb := range s.evalCallbacks {
		cb(s.model, p.Iteration, p.Task)
	}
}

func (s *Scheduler) fireGeneratorCallbacks(p Progress, iteration, task int) {
	for _, cb := range s.genLossCallbacks {
		cb(p)
	}
	var allowed []int
	if s.cfg.Scenario != domainTraining.ScenarioDomain {
		allowed = classRange(0, s.cfg.ClassesPerTask*task)
	}
	for _, cb := range s.sampleCallbacks {
		cb(s.generator, iteration, task, allowed)
	}
}

func classRange(lo, hi int) []int {
	r := make([]int, 0, hi-lo)
	for c := lo; c < hi; c++ {
		r = append(r, c)
	}
	return r
}
