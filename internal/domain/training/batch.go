package training

// Batch is one mini-batch of real training data.
type Batch struct {
	// Inputs holds one input vector per sample.
	Inputs [][]float64 `json:"inputs"`

	// Labels holds one class label per sample, aligned with Inputs. Labels
	// are local to the task's class range in the task-incremental scenario.
	Labels []int `json:"labels"`
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int { return len(b.Inputs) }

// ReplaySet is one group of replayed samples together with its targets.
// Exactly one of Labels or Scores is populated, per the model's configured
// replay-target mode.
type ReplaySet struct {
	// Inputs holds the replayed input vectors.
	Inputs [][]float64 `json:"inputs"`

	// Labels holds hard targets from the previous model.
	Labels []int `json:"labels,omitempty"`

	// Scores holds soft score targets from the previous model.
	Scores [][]float64 `json:"scores,omitempty"`

	// TaskUsed records which task each sample was conditioned on, when the
	// generator reports provenance.
	TaskUsed []int `json:"taskUsed,omitempty"`
}

// ReplayBatch is an ephemeral batch of replayed samples. PerTask runs carry
// one ReplaySet per previous task; otherwise Sets has a single entry.
type ReplayBatch struct {
	Sets    []ReplaySet `json:"sets"`
	PerTask bool        `json:"perTask"`

	// Hidden marks replay at the hidden level (generative replay); the model
	// must not re-encode these inputs.
	Hidden bool `json:"hidden"`
}

// Size returns the total number of replayed samples across sets.
func (r *ReplayBatch) Size() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, s := range r.Sets {
		n += len(s.Inputs)
	}
	return n
}

// ActiveClasses describes which classes participate in the current update.
// The task scenario uses PerTask (one class list per task so far); the class
// scenario uses Flat (all classes seen so far); the domain scenario leaves
// both nil.
type ActiveClasses struct {
	PerTask [][]int `json:"perTask,omitempty"`
	Flat    []int   `json:"flat,omitempty"`
}

// ActiveClassesFor builds the active-class description for the given task
// under the given scenario.
func ActiveClassesFor(scenario Scenario, classesPerTask, task int) *ActiveClasses {
	switch scenario {
	case ScenarioTask:
		per := make([][]int, task)
		for i := 0; i < task; i++ {
			per[i] = classRange(classesPerTask*i, classesPerTask*(i+1))
		}
		return &ActiveClasses{PerTask: per}
	case ScenarioClass:
		return &ActiveClasses{Flat: classRange(0, classesPerTask*task)}
	default:
		return nil
	}
}

func classRange(lo, hi int) []int {
	r := make([]int, 0, hi-lo)
	for c := lo; c < hi; c++ {
		r = append(r, c)
	}
	return r
}

// LossReport carries the named loss components of one batch update.
type LossReport map[string]float64

// BatchInput is the full input to one single-batch model or generator update.
type BatchInput struct {
	// Inputs/Labels is the current task's real batch. Both are nil in the
	// offline task-incremental mode, where PerTaskBatches carries the data.
	Inputs [][]float64
	Labels []int

	// PerTaskBatches holds one reduced-size batch per task so far, used only
	// with offline replay in the task-incremental scenario.
	PerTaskBatches []Batch

	// Replay holds the replayed samples and their targets, nil when replay
	// is disabled or not yet available.
	Replay *ReplayBatch

	// Active describes the classes participating in this update.
	Active *ActiveClasses

	// Task is the 1-based index of the current task.
	Task int

	// RNT is the relative weight of the new task in the combined loss.
	RNT float64

	// FreezeConv freezes convolutional layers for this update.
	FreezeConv bool
}
