package training

import (
	"testing"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
)

func labelerConfig(scenario domainTraining.Scenario) domainTraining.Config {
	cfg := domainTraining.DefaultConfig()
	cfg.ReplayMode = domainTraining.ReplayGenerative
	cfg.Scenario = scenario
	cfg.ClassesPerTask = 2
	return cfg
}

func TestLabeler_ClassScenarioSinglePass(t *testing.T) {
	l := NewLabeler(labelerConfig(domainTraining.ScenarioClass))
	prev := newStubModel(6)
	// Class 1 wins among the 4 previously seen classes; the top score in an
	// unseen column must not leak into the labels.
	prev.scoreFn = func(x []float64) []float64 {
		return []float64{0, 3, 1, 0, 9, 9}
	}

	single := domainTraining.SampleResult{Inputs: [][]float64{{0}, {1}, {2}}}
	batch, err := l.Label(prev, single, nil, 3, true)
	if err != nil {
		t.Fatalf("Label: %v", err)
	}
	if batch.PerTask {
		t.Error("class scenario must not label per task")
	}
	if !batch.Hidden {
		t.Error("generative replay must be marked hidden")
	}
	if len(batch.Sets) != 1 {
		t.Fatalf("got %d sets, want 1", len(batch.Sets))
	}

	set := batch.Sets[0]
	if set.Scores != nil {
		t.Error("hard-target mode must not retain scores")
	}
	if len(set.Labels) != 3 {
		t.Fatalf("got %d labels, want 3", len(set.Labels))
	}
	for _, label := range set.Labels {
		if label != 1 {
			t.Errorf("label = %d, want 1 (argmax over the 4 seen classes)", label)
		}
	}
	if prev.classifyN != 1 {
		t.Errorf("previous model scored %d times, want 1", prev.classifyN)
	}
}

func TestLabeler_SoftTargetsTruncated(t *testing.T) {
	l := NewLabeler(labelerConfig(domainTraining.ScenarioClass))
	prev := newStubModel(6)
	prev.targets = domainTraining.TargetsSoft
	prev.scoreFn = func(x []float64) []float64 {
		return []float64{0, 1, 2, 3, 4, 5}
	}

	single := domainTraining.SampleResult{Inputs: [][]float64{{0}}}
	batch, err := l.Label(prev, single, nil, 3, true)
	if err != nil {
		t.Fatalf("Label: %v", err)
	}
	set := batch.Sets[0]
	if set.Labels != nil {
		t.Error("soft-target mode must not retain labels")
	}
	if len(set.Scores) != 1 || len(set.Scores[0]) != 4 {
		t.Fatalf("score shape = %dx%d, want 1x4", len(set.Scores), len(set.Scores[0]))
	}
	for j, v := range set.Scores[0] {
		if v != float64(j) {
			t.Errorf("score[%d] = %g, want %g", j, v, float64(j))
		}
	}
}

func TestLabeler_TaskScenarioSharedPass(t *testing.T) {
	// No task masks: one forward pass, sliced into each previous task's
	// class range with task-local labels.
	l := NewLabeler(labelerConfig(domainTraining.ScenarioTask))
	prev := newStubModel(6)
	prev.scoreFn = func(x []float64) []float64 {
		return []float64{0, 1, 5, 2, 0, 0}
	}

	single := domainTraining.SampleResult{Inputs: [][]float64{{0}, {1}}}
	batch, err := l.Label(prev, single, nil, 3, false)
	if err != nil {
		t.Fatalf("Label: %v", err)
	}
	if !batch.PerTask {
		t.Fatal("task scenario must label per task")
	}
	if batch.Hidden {
		t.Error("non-generative replay must not be hidden")
	}
	if len(batch.Sets) != 2 {
		t.Fatalf("got %d sets, want 2", len(batch.Sets))
	}
	if prev.classifyN != 1 {
		t.Errorf("previous model scored %d times, want one shared pass", prev.classifyN)
	}

	// Task 1 range [0,2): argmax local 1. Task 2 range [2,4): argmax local 0.
	for _, label := range batch.Sets[0].Labels {
		if label != 1 {
			t.Errorf("task 1 label = %d, want 1", label)
		}
	}
	for _, label := range batch.Sets[1].Labels {
		if label != 0 {
			t.Errorf("task 2 label = %d, want 0", label)
		}
	}
}

func TestLabeler_MaskedModelPerTaskPasses(t *testing.T) {
	l := NewLabeler(labelerConfig(domainTraining.ScenarioTask))
	prev := newStubModel(6)
	prev.masked = true
	prev.scoreFn = func(x []float64) []float64 {
		return []float64{2, 0, 0, 1, 0, 0}
	}

	single := domainTraining.SampleResult{Inputs: [][]float64{{0}}}
	batch, err := l.Label(prev, single, nil, 3, true)
	if err != nil {
		t.Fatalf("Label: %v", err)
	}
	if len(batch.Sets) != 2 {
		t.Fatalf("got %d sets, want 2", len(batch.Sets))
	}
	if prev.classifyN != 2 {
		t.Errorf("masked model scored %d times, want one per previous task", prev.classifyN)
	}
	if len(prev.appliedMasks) != 2 || prev.appliedMasks[0] != 1 || prev.appliedMasks[1] != 2 {
		t.Errorf("applied masks = %v, want [1 2]", prev.appliedMasks)
	}
}

func TestLabeler_PerTaskCandidates(t *testing.T) {
	l := NewLabeler(labelerConfig(domainTraining.ScenarioTask))
	prev := newStubModel(6)
	prev.scoreFn = func(x []float64) []float64 {
		return []float64{1, 0, 0, 1, 0, 0}
	}

	perTask := []domainTraining.SampleResult{
		{Inputs: [][]float64{{0}, {1}}, TaskUsed: []int{0, 0}},
		{Inputs: [][]float64{{2}}, TaskUsed: []int{1}},
	}
	batch, err := l.Label(prev, domainTraining.SampleResult{}, perTask, 3, true)
	if err != nil {
		t.Fatalf("Label: %v", err)
	}
	if len(batch.Sets) != 2 {
		t.Fatalf("got %d sets, want 2", len(batch.Sets))
	}
	if len(batch.Sets[0].Inputs) != 2 || len(batch.Sets[1].Inputs) != 1 {
		t.Errorf("set sizes = %d and %d, want 2 and 1",
			len(batch.Sets[0].Inputs), len(batch.Sets[1].Inputs))
	}
	if batch.Sets[1].TaskUsed == nil || batch.Sets[1].TaskUsed[0] != 1 {
		t.Error("per-task provenance must be carried through")
	}
}

func TestLabeler_ScoreWidthTooShort(t *testing.T) {
	l := NewLabeler(labelerConfig(domainTraining.ScenarioTask))
	prev := newStubModel(2)
	prev.scoreFn = func(x []float64) []float64 { return []float64{0, 1} }

	single := domainTraining.SampleResult{Inputs: [][]float64{{0}}}
	if _, err := l.Label(prev, single, nil, 3, true); err == nil {
		t.Error("scores narrower than a task's class range must fail")
	}
}

func TestLabeler_RequiresPreviousModel(t *testing.T) {
	l := NewLabeler(labelerConfig(domainTraining.ScenarioClass))
	if _, err := l.Label(nil, domainTraining.SampleResult{}, nil, 2, true); err == nil {
		t.Error("labeling without a previous model must fail")
	}
}
