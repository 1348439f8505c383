package training

import (
	"fmt"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
)

// CandidatePool is the output of one replay draw: either a single pool of
// candidates (possibly over-generated, awaiting curation) or one result per
// previous task when generation is task-conditioned.
type CandidatePool struct {
	// Pool holds the candidates in the single-pool case.
	Pool domainTraining.SampleResult

	// PerTask holds one result per previous task in the task-conditioned
	// case; Pool is empty then.
	PerTask []domainTraining.SampleResult

	// NeedsCuration marks an over-generated pool that must pass through the
	// curation engine before replay.
	NeedsCuration bool

	// AllowedClasses is the class range candidates were generated from; nil
	// in the domain-incremental scenario.
	AllowedClasses []int
}

// ReplaySampler draws candidate replay inputs from the frozen previous
// generator under the configured selection policy.
type ReplaySampler struct {
	cfg domainTraining.Config
}

// NewReplaySampler builds a sampler for the given configuration.
func NewReplaySampler(cfg domainTraining.Config) *ReplaySampler {
	return &ReplaySampler{cfg: cfg}
}

// Draw samples replay candidates for the given 1-based task (task >= 2).
// current is the current task's real batch, consulted by the softmax
// policies. classVarietyMask is the precomputed per-task mask for the
// curated_classVariety policy, nil otherwise.
func (s *ReplaySampler) Draw(prevGen domainTraining.Generator, prevModel domainTraining.Model,
	current domainTraining.Batch, task int, classVarietyMask [][]float64) (*CandidatePool, error) {

	if prevGen == nil {
		return nil, fmt.Errorf("replay draw for task %d without a previous generator", task)
	}
	if task < 2 {
		return nil, fmt.Errorf("replay draw requires task >= 2, got %d", task)
	}

	replaySize := s.cfg.ReplaySize()

	// Task-conditioned generation: one request per previous task, sizes
	// divided as evenly as possible with earlier tasks absorbing the
	// remainder.
	if domainTraining.Conditional(prevGen) && s.cfg.Scenario == domainTraining.ScenarioTask {
		prev := task - 1
		base, rem := replaySize/prev, replaySize%prev
		perTask := make([]domainTraining.SampleResult, prev)
		for id := 0; id < prev; id++ {
			count := base
			if id < rem {
				count++
			}
			res, err := prevGen.Sample(domainTraining.SampleRequest{
				Count:          count,
				AllowedClasses: rangeInts(s.cfg.ClassesPerTask*id, s.cfg.ClassesPerTask*(id+1)),
			})
			if err != nil {
				return nil, fmt.Errorf("task-conditioned draw for task %d: %w", id+1, err)
			}
			perTask[id] = res
		}
		return &CandidatePool{PerTask: perTask}, nil
	}

	var allowed []int
	if s.cfg.Scenario != domainTraining.ScenarioDomain {
		allowed = rangeInts(0, s.cfg.ClassesPerTask*(task-1))
	}
	domains := rangeInts(0, task-1)

	req := domainTraining.SampleRequest{
		Count:          replaySize,
		AllowedClasses: allowed,
		AllowedDomains: domains,
	}

	method := s.cfg.SampleMethod
	switch method {
	case domainTraining.SampleRandom:
		// unweighted draw

	case domainTraining.SampleUniform:
		req.UniformSampling = true

	case domainTraining.SampleSoftmax:
		probs, err := s.confusionProbs(prevModel, current, task)
		if err != nil {
			return nil, err
		}
		req.ClassProbs = probs

	default:
		req.Count = replaySize * s.cfg.CuratedMultiplier
		req.WithVariety = method.NeedsVariety()
		switch method {
		case domainTraining.SampleCuratedClassVariety:
			req.UniformSampling = true
			req.ClassVariety = true
			req.ClassVarietyMask = classVarietyMask
		case domainTraining.SampleCuratedSoftmax:
			probs, err := s.confusionProbs(prevModel, current, task)
			if err != nil {
				return nil, err
			}
			req.ClassProbs = probs
		}
	}

	res, err := prevGen.Sample(req)
	if err != nil {
		return nil, fmt.Errorf("replay draw (%s): %w", method, err)
	}
	if len(res.Inputs) != req.Count {
		return nil, fmt.Errorf("generator returned %d candidates, requested %d", len(res.Inputs), req.Count)
	}
	if req.WithVariety && len(res.Variety) != req.Count {
		return nil, fmt.Errorf("generator returned %d variety scores for %d candidates", len(res.Variety), req.Count)
	}

	return &CandidatePool{
		Pool:           res,
		NeedsCuration:  method.OverGenerates(),
		AllowedClasses: allowed,
	}, nil
}

// confusionProbs scores the current task's real inputs with the previous
// model, restricted to previously-seen classes, and returns the mean softmax
// probability per class widened to the full label space. Classes the model
// confuses with the new data receive proportionally more replay.
func (s *ReplaySampler) confusionProbs(prevModel domainTraining.Model, current domainTraining.Batch, task int) ([]float64, error) {
	if prevModel == nil {
		return nil, fmt.Errorf("softmax sampling requires a previous model")
	}
	scores, err := prevModel.Classify(current.Inputs, true)
	if err != nil {
		return nil, fmt.Errorf("scoring current batch: %w", err)
	}
	prevClasses := s.cfg.ClassesPerTask * (task - 1)
	mean := make([]float64, prevClasses)
	for _, row := range scores {
		seen, err := truncate(row, prevClasses)
		if err != nil {
			return nil, err
		}
		for j, p := range softmax(seen) {
			mean[j] += p
		}
	}
	for j := range mean {
		mean[j] /= float64(len(scores))
	}
	probs := make([]float64, prevModel.OutputWidth())
	copy(probs, mean)
	return probs, nil
}

// BuildClassVarietyMask precomputes the candidate-comparison mask for the
// curated_classVariety policy: row r compares against the columns whose pool
// index falls in the same class slot modulo the class count. The pool size
// need not be an exact multiple of the class count; trailing slots simply
// compare against fewer rows.
func BuildClassVarietyMask(poolSize, classCount int) [][]float64 {
	mask := make([][]float64, poolSize)
	for r := 0; r < poolSize; r++ {
		row := make([]float64, poolSize)
		for c := 0; c < poolSize; c++ {
			if c%classCount == r%classCount {
				row[c] = 1
			}
		}
		mask[r] = row
	}
	return mask
}

func rangeInts(lo, hi int) []int {
	r := make([]int, 0, hi-lo)
	for v := lo; v < hi; v++ {
		r = append(r, v)
	}
	return r
}
