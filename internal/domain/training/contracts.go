package training

// Model is the trainable classifier driven by the scheduler. Implementations
// live outside the scheduler core; the scheduler only relies on this contract.
type Model interface {
	// TrainBatch performs one optimization step on the given batch and
	// returns the named loss components.
	TrainBatch(in BatchInput) (LossReport, error)

	// Classify returns one score vector per input, of width OutputWidth.
	// notHidden indicates the inputs are raw rather than hidden-level.
	Classify(inputs [][]float64, notHidden bool) ([][]float64, error)

	// OutputWidth is the width of the model's score vectors.
	OutputWidth() int

	// ReplayTargets reports whether the model consumes hard labels or soft
	// scores for replayed samples.
	ReplayTargets() ReplayTargetMode

	// HasTaskMasks reports whether the model carries task-specific parameter
	// masks; when true, ApplyTaskMask must be called before Classify to
	// evaluate a given task.
	HasTaskMasks() bool

	// ApplyTaskMask activates the parameter mask of the given 1-based task.
	ApplyTaskMask(task int) error

	// Parameters returns a copy of the trainable parameters as one flat
	// vector in a stable order.
	Parameters() []float64

	// Gradients returns a copy of the most recent step's gradients, aligned
	// with Parameters. It returns nil before the first update.
	Gradients() []float64

	// SIEnabled reports whether synaptic-intelligence importance tracking is
	// active for this model.
	SIEnabled() bool

	// EWCEnabled reports whether Fisher-information estimation runs at task
	// boundaries.
	EWCEnabled() bool

	// EstimateFisher estimates the diagonal Fisher information over the
	// dataset, restricted to the allowed classes (nil means all), and folds
	// it into the model's quadratic penalty.
	EstimateFisher(data Dataset, allowedClasses []int) error

	// UpdateOmega folds the accumulated path-integral importance estimate
	// into the model's per-parameter importance term, damped by epsilon.
	UpdateOmega(w []float64, epsilon float64) error

	// Reinit reinitializes the trainable parameters.
	Reinit()

	// Clone returns a structurally independent deep copy. Mutating the
	// original after cloning must not affect the clone.
	Clone() Model

	// SetEvalMode switches normalization layers and gradient tracking
	// between training and inference behavior.
	SetEvalMode(eval bool)
}

// SampleRequest describes one draw of pseudo-samples from a generator.
type SampleRequest struct {
	// Count is the number of samples to draw.
	Count int

	// AllowedClasses restricts generation to these classes; nil means all.
	AllowedClasses []int

	// AllowedDomains restricts generation to these 0-based task domains;
	// relevant only for task-gated generators.
	AllowedDomains []int

	// OnlyInputs skips label and provenance bookkeeping.
	OnlyInputs bool

	// ClassProbs weights class-sampling probability; indexed by class over
	// the full label space. Nil means unweighted.
	ClassProbs []float64

	// UniformSampling balances class counts as evenly as possible.
	UniformSampling bool

	// WithVariety requests a per-candidate variety score.
	WithVariety bool

	// ClassVariety computes variety against same-class candidates only,
	// using ClassVarietyMask to select comparison rows.
	ClassVariety     bool
	ClassVarietyMask [][]float64
}

// SampleResult is the outcome of one generator draw.
type SampleResult struct {
	// Inputs holds the generated input vectors.
	Inputs [][]float64

	// Labels holds the class each sample was conditioned on.
	Labels []int

	// TaskUsed holds the 0-based task each sample was conditioned on.
	TaskUsed []int

	// Variety holds per-candidate variety scores when requested.
	Variety []float64
}

// Generator is the generative model used for replay. Like Model, its
// architecture and training objective live outside the scheduler core.
type Generator interface {
	// TrainBatch performs one generator optimization step.
	TrainBatch(in BatchInput) (LossReport, error)

	// Sample draws pseudo-samples per the request.
	Sample(req SampleRequest) (SampleResult, error)

	// PerClass reports whether generation is class-conditional.
	PerClass() bool

	// PriorGMM reports whether the generator uses a per-class GMM prior.
	PriorGMM() bool

	// TaskGated reports whether the generator gates its decoder per task.
	TaskGated() bool

	// Reinit reinitializes the generator's parameters.
	Reinit()

	// Clone returns a structurally independent deep copy.
	Clone() Generator

	// SetEvalMode switches the generator to inference behavior.
	SetEvalMode(eval bool)
}

// SampleSource is the sampling subset of the Generator contract. A model
// implementing it can serve as its own replay generator (feedback replay).
type SampleSource interface {
	// Sample draws pseudo-samples per the request.
	Sample(req SampleRequest) (SampleResult, error)

	// PerClass reports whether generation is class-conditional.
	PerClass() bool

	// PriorGMM reports whether the generator uses a per-class GMM prior.
	PriorGMM() bool

	// TaskGated reports whether the generator gates its decoder per task.
	TaskGated() bool
}

// Conditional reports whether the generator produces class- or task-
// conditioned samples, which enables per-task replay generation in the
// task-incremental scenario.
func Conditional(g Generator) bool {
	return (g.PerClass() && g.PriorGMM()) || g.TaskGated()
}

// Dataset yields labeled samples for one task.
type Dataset interface {
	// Len is the number of samples.
	Len() int

	// Sample returns the input vector and label at index i.
	Sample(i int) (inputs []float64, label int)
}

// ConcatDataset concatenates several task datasets into one, used for
// offline replay outside the task-incremental scenario.
type ConcatDataset struct {
	parts []Dataset
	total int
}

// Concat builds a ConcatDataset over the given parts.
func Concat(parts ...Dataset) *ConcatDataset {
	c := &ConcatDataset{parts: parts}
	for _, p := range parts {
		c.total += p.Len()
	}
	return c
}

// Len returns the combined sample count.
func (c *ConcatDataset) Len() int { return c.total }

// Sample returns the sample at the combined index i.
func (c *ConcatDataset) Sample(i int) ([]float64, int) {
	for _, p := range c.parts {
		if i < p.Len() {
			return p.Sample(i)
		}
		i -= p.Len()
	}
	panic("training: concat dataset index out of range")
}
