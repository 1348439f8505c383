package training

import (
	"fmt"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
)

// Labeler computes replay targets from the frozen previous model: either
// hard argmax labels or soft score distributions, per the model's configured
// replay-target mode.
type Labeler struct {
	cfg domainTraining.Config
}

// NewLabeler builds a labeler for the given configuration.
func NewLabeler(cfg domainTraining.Config) *Labeler {
	return &Labeler{cfg: cfg}
}

// Label builds the replay batch for the given 1-based task. Exactly one of
// single or perTask is provided: perTask carries one candidate list per
// previous task when generation was task-conditioned.
func (l *Labeler) Label(prev domainTraining.Model, single domainTraining.SampleResult,
	perTask []domainTraining.SampleResult, task int, generative bool,
) (*domainTraining.ReplayBatch, error) {

	if prev == nil {
		return nil, fmt.Errorf("target labeling requires a previous model")
	}
	notHidden := !generative
	mode := prev.ReplayTargets()
	prevClasses := l.cfg.ClassesPerTask * (task - 1)

	// Single forward pass: no task mask and no per-task candidate lists.
	// In the class-incremental scenario scores are truncated to the classes
	// seen before the current task; the loss function synthesizes zero
	// probability mass for unseen classes downstream.
	if l.singlePass(prev) && perTask == nil {
		all, err := prev.Classify(single.Inputs, notHidden)
		if err != nil {
			return nil, fmt.Errorf("labeling replay batch: %w", err)
		}
		set := domainTraining.ReplaySet{Inputs: single.Inputs, TaskUsed: single.TaskUsed}
		scores := make([][]float64, len(all))
		labels := make([]int, len(all))
		for i, row := range all {
			visible := row
			if l.cfg.Scenario == domainTraining.ScenarioClass {
				if visible, err = truncate(row, prevClasses); err != nil {
					return nil, err
				}
			}
			scores[i] = append([]float64(nil), visible...)
			labels[i] = argmax(visible)
		}
		l.retain(&set, labels, scores, mode)
		return &domainTraining.ReplayBatch{
			Sets:   []domainTraining.ReplaySet{set},
			Hidden: generative,
		}, nil
	}

	// Per-task pass: apply each previous task's mask (when present) and
	// slice that task's class range, full range in the domain scenario.
	var shared [][]float64
	if !prev.HasTaskMasks() && perTask == nil {
		var err error
		if shared, err = prev.Classify(single.Inputs, notHidden); err != nil {
			return nil, fmt.Errorf("labeling replay batch: %w", err)
		}
	}

	sets := make([]domainTraining.ReplaySet, task-1)
	for id := 0; id < task-1; id++ {
		if prev.HasTaskMasks() {
			if err := prev.ApplyTaskMask(id + 1); err != nil {
				return nil, fmt.Errorf("applying mask of task %d: %w", id+1, err)
			}
		}

		inputs := single.Inputs
		taskUsed := single.TaskUsed
		if perTask != nil {
			inputs = perTask[id].Inputs
			taskUsed = perTask[id].TaskUsed
		}

		all := shared
		if all == nil {
			var err error
			if all, err = prev.Classify(inputs, notHidden); err != nil {
				return nil, fmt.Errorf("labeling replay for task %d: %w", id+1, err)
			}
		}

		lo, hi := l.cfg.ClassesPerTask*id, l.cfg.ClassesPerTask*(id+1)
		scores := make([][]float64, len(all))
		labels := make([]int, len(all))
		for i, row := range all {
			visible := row
			if l.cfg.Scenario != domainTraining.ScenarioDomain {
				if len(row) < hi {
					return nil, fmt.Errorf(
						"score width %d shorter than class range of task %d", len(row), id+1)
				}
				visible = row[lo:hi]
			}
			scores[i] = append([]float64(nil), visible...)
			labels[i] = argmax(visible)
		}

		set := domainTraining.ReplaySet{Inputs: inputs, TaskUsed: taskUsed}
		l.retain(&set, labels, scores, mode)
		sets[id] = set
	}

	return &domainTraining.ReplayBatch{
		Sets:    sets,
		PerTask: true,
		Hidden:  generative,
	}, nil
}

// singlePass reports whether replay targets can be computed in one forward
// pass without per-task masking.
func (l *Labeler) singlePass(prev domainTraining.Model) bool {
	if prev.HasTaskMasks() {
		return false
	}
	return l.cfg.Scenario == domainTraining.ScenarioDomain ||
		l.cfg.Scenario == domainTraining.ScenarioClass
}

// retain keeps exactly one of hard labels or soft scores.
func (l *Labeler) retain(set *domainTraining.ReplaySet, labels []int, scores [][]float64, mode domainTraining.ReplayTargetMode) {
	if mode == domainTraining.TargetsSoft {
		set.Scores = scores
	} else {
		set.Labels = labels
	}
}
