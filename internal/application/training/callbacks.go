package training

import (
	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
)

// Progress reports one completed update to loss callbacks.
type Progress struct {
	// RunID identifies the training run.
	RunID string `json:"runId"`

	// Task is the 1-based task index.
	Task int `json:"task"`

	// Epoch is the 1-based pass over the task's dataset.
	Epoch int `json:"epoch"`

	// Iteration is the 1-based optimization step within the task.
	Iteration int `json:"iteration"`

	// Losses holds the update's named loss components.
	Losses domainTraining.LossReport `json:"losses"`
}

// LossCallback observes training progress. Callbacks fire strictly after the
// corresponding update completes, in registration order, once per iteration.
type LossCallback func(Progress)

// EvalCallback evaluates the model during training; whether it does anything
// on a given iteration is the callback's own business.
type EvalCallback func(m domainTraining.Model, iteration, task int)

// SampleCallback observes the generator after its updates, with the classes
// currently allowed for sampling (nil in the domain scenario).
type SampleCallback func(g domainTraining.Generator, iteration, task int, allowedClasses []int)
