package training

import (
	"fmt"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
)

// Snapshots owns the frozen previous model and generator used for replay
// sampling and target scoring. Snapshots are taken once per task boundary
// and are never updated in place.
type Snapshots struct {
	model     domainTraining.Model
	generator domainTraining.Generator
}

// FreezeModel returns an immutable evaluation-mode deep copy of the model.
func FreezeModel(m domainTraining.Model) domainTraining.Model {
	s := m.Clone()
	s.SetEvalMode(true)
	return s
}

// FreezeGenerator returns an immutable evaluation-mode deep copy of the
// generator.
func FreezeGenerator(g domainTraining.Generator) domainTraining.Generator {
	s := g.Clone()
	s.SetEvalMode(true)
	return s
}

// Refresh replaces both snapshots at a task boundary. With feedback replay
// the frozen model doubles as the generator snapshot, which requires the
// model to implement the Generator contract.
func (s *Snapshots) Refresh(m domainTraining.Model, g domainTraining.Generator, generative, feedback bool) error {
	s.model = FreezeModel(m)
	if !generative {
		s.generator = nil
		return nil
	}
	if feedback {
		src, ok := s.model.(domainTraining.SampleSource)
		if !ok {
			return fmt.Errorf("feedback replay requires a model that implements the sample-source contract")
		}
		s.generator = &feedbackGenerator{model: s.model, src: src}
		return nil
	}
	if g == nil {
		return fmt.Errorf("generative replay requires a generator")
	}
	s.generator = FreezeGenerator(g)
	return nil
}

// feedbackGenerator adapts a model that can sample to the full Generator
// contract, so the frozen model doubles as the replay generator.
type feedbackGenerator struct {
	model domainTraining.Model
	src   domainTraining.SampleSource
}

func (f *feedbackGenerator) TrainBatch(in domainTraining.BatchInput) (domainTraining.LossReport, error) {
	return f.model.TrainBatch(in)
}

func (f *feedbackGenerator) Sample(req domainTraining.SampleRequest) (domainTraining.SampleResult, error) {
	return f.src.Sample(req)
}

func (f *feedbackGenerator) PerClass() bool  { return f.src.PerClass() }
func (f *feedbackGenerator) PriorGMM() bool  { return f.src.PriorGMM() }
func (f *feedbackGenerator) TaskGated() bool { return f.src.TaskGated() }
func (f *feedbackGenerator) Reinit()         { f.model.Reinit() }

func (f *feedbackGenerator) Clone() domainTraining.Generator {
	clone := f.model.Clone()
	return &feedbackGenerator{model: clone, src: clone.(domainTraining.SampleSource)}
}

func (f *feedbackGenerator) SetEvalMode(eval bool) { f.model.SetEvalMode(eval) }

// Model returns the frozen previous model, nil before the first boundary.
func (s *Snapshots) Model() domainTraining.Model { return s.model }

// Generator returns the frozen previous generator, nil unless generative
// replay is active.
func (s *Snapshots) Generator() domainTraining.Generator { return s.generator }
