// Package brainreplay provides the public API for brain-inspired-replay.
//
// This package provides a high-level interface for training a classifier
// over a sequence of tasks with generative replay, curated sample selection,
// and parameter regularization.
//
// Example:
//
//	model, err := brainreplay.NewLinearModel(brainreplay.DefaultLinearModelConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := brainreplay.DefaultConfig()
//	cfg.ReplayMode = brainreplay.ReplayGenerative
//	cfg.Scenario = brainreplay.ScenarioClass
//
//	scheduler, err := brainreplay.New(model, cfg, brainreplay.WithGenerator(gen))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = scheduler.TrainContinual(ctx, datasets)
package brainreplay

import (
	"github.com/elliottower/brain-inspired-replay/internal/application/experiment"
	appTraining "github.com/elliottower/brain-inspired-replay/internal/application/training"
	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
	"github.com/elliottower/brain-inspired-replay/internal/infrastructure/checkpoint"
	"github.com/elliottower/brain-inspired-replay/internal/infrastructure/reference"
)

// Re-export types for public API
type (
	// Core configuration
	Config           = domainTraining.Config
	Scenario         = domainTraining.Scenario
	ReplayMode       = domainTraining.ReplayMode
	SampleMethod     = domainTraining.SampleMethod
	ReplayTargetMode = domainTraining.ReplayTargetMode

	// Model and generator contracts
	Model         = domainTraining.Model
	Generator     = domainTraining.Generator
	Dataset       = domainTraining.Dataset
	ConcatDataset = domainTraining.ConcatDataset
	BatchInput    = domainTraining.BatchInput
	ReplayBatch   = domainTraining.ReplayBatch
	ReplaySet     = domainTraining.ReplaySet
	SampleRequest = domainTraining.SampleRequest
	SampleResult  = domainTraining.SampleResult
	LossReport    = domainTraining.LossReport

	// Scheduler
	Scheduler      = appTraining.Scheduler
	Option         = appTraining.Option
	Progress       = appTraining.Progress
	LossCallback   = appTraining.LossCallback
	EvalCallback   = appTraining.EvalCallback
	SampleCallback = appTraining.SampleCallback

	// Persistence
	Store       = checkpoint.Store
	StoreConfig = checkpoint.StoreConfig
	Checkpoint  = checkpoint.Checkpoint
	MetricRow   = checkpoint.MetricRow

	// Reference collaborators
	LinearModel       = reference.LinearModel
	LinearModelConfig = reference.LinearModelConfig
	GaussianGenerator = reference.GaussianGenerator
	GeneratorConfig   = reference.GeneratorConfig
	ClusterDataset    = reference.ClusterDataset

	// Experiment assembly
	ExperimentConfig = experiment.Config
	Runner           = experiment.Runner
	Result           = experiment.Result
	TaskAccuracy     = experiment.TaskAccuracy
)

// Scenario constants
const (
	ScenarioTask   = domainTraining.ScenarioTask
	ScenarioDomain = domainTraining.ScenarioDomain
	ScenarioClass  = domainTraining.ScenarioClass
)

// Replay mode constants
const (
	ReplayNone       = domainTraining.ReplayNone
	ReplayGenerative = domainTraining.ReplayGenerative
	ReplayCurrent    = domainTraining.ReplayCurrent
	ReplayOffline    = domainTraining.ReplayOffline
)

// Sample method constants
const (
	SampleRandom              = domainTraining.SampleRandom
	SampleUniform             = domainTraining.SampleUniform
	SampleSoftmax             = domainTraining.SampleSoftmax
	SampleCurated             = domainTraining.SampleCurated
	SampleCuratedSoftmax      = domainTraining.SampleCuratedSoftmax
	SampleCuratedVariety      = domainTraining.SampleCuratedVariety
	SampleCuratedClassVariety = domainTraining.SampleCuratedClassVariety
	SampleInterfered          = domainTraining.SampleInterfered
	SampleMisclassified       = domainTraining.SampleMisclassified
	SampleRandomLarge         = domainTraining.SampleRandomLarge
	SampleUniformLarge        = domainTraining.SampleUniformLarge
)

// Replay target constants
const (
	TargetsHard = domainTraining.TargetsHard
	TargetsSoft = domainTraining.TargetsSoft
)

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return domainTraining.DefaultConfig()
}

// New creates a scheduler for the given model and configuration.
func New(model Model, cfg Config, opts ...Option) (*Scheduler, error) {
	return appTraining.New(model, cfg, opts...)
}

// Scheduler options
var (
	WithGenerator       = appTraining.WithGenerator
	WithCheckpointStore = appTraining.WithCheckpointStore
	WithLossCallback    = appTraining.WithLossCallback
	WithEvalCallback    = appTraining.WithEvalCallback
	WithGenLossCallback = appTraining.WithGenLossCallback
	WithSampleCallback  = appTraining.WithSampleCallback
)

// Concat combines several task datasets into one.
func Concat(parts ...Dataset) *ConcatDataset {
	return domainTraining.Concat(parts...)
}

// NewStore opens a checkpoint store.
func NewStore(cfg StoreConfig) (*Store, error) {
	return checkpoint.NewStore(cfg)
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return checkpoint.DefaultStoreConfig()
}

// NewLinearModel builds the reference softmax classifier.
func NewLinearModel(cfg LinearModelConfig) (*LinearModel, error) {
	return reference.NewLinearModel(cfg)
}

// DefaultLinearModelConfig returns the default classifier configuration.
func DefaultLinearModelConfig() LinearModelConfig {
	return reference.DefaultLinearModelConfig()
}

// NewGaussianGenerator builds the reference generator.
func NewGaussianGenerator(cfg GeneratorConfig) (*GaussianGenerator, error) {
	return reference.NewGaussianGenerator(cfg)
}

// DefaultGeneratorConfig returns the default generator configuration.
func DefaultGeneratorConfig() GeneratorConfig {
	return reference.DefaultGeneratorConfig()
}

// NewClusterTask builds one synthetic task dataset.
func NewClusterTask(classes []int, perClass, inputDim int, noise float64, seed int64) (*ClusterDataset, error) {
	return reference.NewClusterTask(classes, perClass, inputDim, noise, seed)
}

// DefaultExperimentConfig returns the default experiment description.
func DefaultExperimentConfig() ExperimentConfig {
	return experiment.DefaultConfig()
}

// LoadExperiment reads a YAML experiment config.
func LoadExperiment(path string) (ExperimentConfig, error) {
	return experiment.Load(path)
}

// NewRunner assembles a full run from an experiment config.
func NewRunner(cfg ExperimentConfig, progress experiment.ProgressFunc) (*Runner, error) {
	return experiment.NewRunner(cfg, progress)
}
