package reference

import (
	"fmt"
	"math"
	"math/rand"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
	"github.com/elliottower/brain-inspired-replay/internal/shared"
)

// GeneratorConfig configures the reference generator.
type GeneratorConfig struct {
	// InputDim is the width of generated vectors.
	InputDim int `json:"inputDim" yaml:"inputDim"`

	// Classes is the full label-space width.
	Classes int `json:"classes" yaml:"classes"`

	// ClassesPerTask maps class ids to task provenance.
	ClassesPerTask int `json:"classesPerTask" yaml:"classesPerTask"`

	// Noise is the standard deviation of generated samples around the class
	// mean.
	Noise float64 `json:"noise" yaml:"noise"`

	// PriorGMM marks the class-conditional prior as a mixture, which lets
	// samplers condition generation on a task's class subset.
	PriorGMM bool `json:"priorGMM" yaml:"priorGMM"`

	// Seed seeds sampling.
	Seed int64 `json:"seed" yaml:"seed"`
}

// DefaultGeneratorConfig returns the default generator configuration.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		InputDim:       16,
		Classes:        6,
		ClassesPerTask: 2,
		Noise:          0.3,
		PriorGMM:       true,
	}
}

// generatorState holds the trained per-class statistics. Fields are exported
// so shared.DeepCopy reaches them.
type generatorState struct {
	Means  [][]float64
	Counts []float64
}

// GaussianGenerator models each class as an isotropic Gaussian around a
// running mean and samples from those Gaussians on demand.
type GaussianGenerator struct {
	cfg   GeneratorConfig
	state *generatorState
	rng   *rand.Rand
	eval  bool
}

// NewGaussianGenerator builds an untrained generator.
func NewGaussianGenerator(cfg GeneratorConfig) (*GaussianGenerator, error) {
	if cfg.InputDim < 1 {
		return nil, fmt.Errorf("input dim must be >= 1, got %d", cfg.InputDim)
	}
	if cfg.Classes < 1 {
		return nil, fmt.Errorf("classes must be >= 1, got %d", cfg.Classes)
	}
	if cfg.ClassesPerTask < 1 {
		return nil, fmt.Errorf("classes per task must be >= 1, got %d", cfg.ClassesPerTask)
	}
	if cfg.Noise <= 0 {
		return nil, fmt.Errorf("noise must be > 0, got %g", cfg.Noise)
	}

	g := &GaussianGenerator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	g.reset()
	return g, nil
}

func (g *GaussianGenerator) reset() {
	means := make([][]float64, g.cfg.Classes)
	for c := range means {
		means[c] = make([]float64, g.cfg.InputDim)
	}
	g.state = &generatorState{
		Means:  means,
		Counts: make([]float64, g.cfg.Classes),
	}
}

// globalLabel resolves a batch label to its global class id, using the
// active-class description to undo task-local re-indexing.
func globalLabel(label int, in domainTraining.BatchInput) int {
	if in.Active != nil && in.Active.PerTask != nil {
		cols := in.Active.PerTask[in.Task-1]
		if label >= 0 && label < len(cols) {
			return cols[label]
		}
	}
	return label
}

// TrainBatch folds the batch into the per-class running means. Replayed
// samples with hard labels contribute too, so old class statistics survive
// task switches.
func (g *GaussianGenerator) TrainBatch(in domainTraining.BatchInput) (domainTraining.LossReport, error) {
	if g.eval {
		return nil, fmt.Errorf("generator is in eval mode")
	}

	var dist float64
	var n int
	observe := func(x []float64, class int) error {
		if class < 0 || class >= g.cfg.Classes {
			return fmt.Errorf("class %d outside [0, %d)", class, g.cfg.Classes)
		}
		g.state.Counts[class]++
		mean := g.state.Means[class]
		var d float64
		for j, v := range x {
			diff := v - mean[j]
			d += diff * diff
			mean[j] += diff / g.state.Counts[class]
		}
		dist += math.Sqrt(d)
		n++
		return nil
	}

	if in.PerTaskBatches != nil {
		for id, batch := range in.PerTaskBatches {
			cols := in.Active.PerTask[id]
			for i, x := range batch.Inputs {
				label := batch.Labels[i]
				if label < 0 || label >= len(cols) {
					return nil, fmt.Errorf("offline batch of task %d: local label %d outside %d columns", id+1, label, len(cols))
				}
				if err := observe(x, cols[label]); err != nil {
					return nil, err
				}
			}
		}
	} else {
		for i, x := range in.Inputs {
			if err := observe(x, globalLabel(in.Labels[i], in)); err != nil {
				return nil, err
			}
		}
	}

	if in.Replay != nil {
		for id, set := range in.Replay.Sets {
			if set.Labels == nil {
				continue
			}
			for i, x := range set.Inputs {
				class := set.Labels[i]
				if in.Replay.PerTask {
					cols := in.Active.PerTask[id]
					if class < 0 || class >= len(cols) {
						return nil, fmt.Errorf("replay set %d: local label %d outside %d columns", id, class, len(cols))
					}
					class = cols[class]
				}
				if err := observe(x, class); err != nil {
					return nil, err
				}
			}
		}
	}

	if n == 0 {
		return domainTraining.LossReport{"recon": 0}, nil
	}
	return domainTraining.LossReport{"recon": dist / float64(n)}, nil
}

// trainedClasses returns the classes with at least one observed sample,
// filtered to allowed if non-nil.
func (g *GaussianGenerator) trainedClasses(allowed []int) []int {
	candidates := allowed
	if candidates == nil {
		candidates = allCols(g.cfg.Classes)
	}
	out := make([]int, 0, len(candidates))
	for _, c := range candidates {
		if c >= 0 && c < g.cfg.Classes && g.state.Counts[c] > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Sample generates the requested number of samples from the per-class
// Gaussians, honoring the request's class conditioning.
func (g *GaussianGenerator) Sample(req domainTraining.SampleRequest) (domainTraining.SampleResult, error) {
	if req.Count < 1 {
		return domainTraining.SampleResult{}, fmt.Errorf("sample count must be >= 1, got %d", req.Count)
	}

	classes := g.trainedClasses(req.AllowedClasses)
	if len(classes) == 0 {
		return domainTraining.SampleResult{}, fmt.Errorf("no trained classes to sample from")
	}

	var cumProbs []float64
	if req.ClassProbs != nil {
		cumProbs = make([]float64, len(classes))
		var sum float64
		for i, c := range classes {
			if c < len(req.ClassProbs) {
				sum += req.ClassProbs[c]
			}
			cumProbs[i] = sum
		}
		if sum <= 0 {
			return domainTraining.SampleResult{}, fmt.Errorf("class probabilities sum to zero over sampleable classes")
		}
		for i := range cumProbs {
			cumProbs[i] /= sum
		}
	}

	res := domainTraining.SampleResult{
		Inputs: make([][]float64, req.Count),
	}
	if !req.OnlyInputs {
		res.Labels = make([]int, req.Count)
		res.TaskUsed = make([]int, req.Count)
	}

	for i := 0; i < req.Count; i++ {
		var class int
		switch {
		case cumProbs != nil:
			r := g.rng.Float64()
			class = classes[len(classes)-1]
			for j, cp := range cumProbs {
				if r < cp {
					class = classes[j]
					break
				}
			}
		case req.UniformSampling:
			class = classes[i%len(classes)]
		default:
			class = classes[g.rng.Intn(len(classes))]
		}

		x := make([]float64, g.cfg.InputDim)
		mean := g.state.Means[class]
		for j := range x {
			x[j] = mean[j] + g.rng.NormFloat64()*g.cfg.Noise
		}
		res.Inputs[i] = x
		if !req.OnlyInputs {
			res.Labels[i] = class
			res.TaskUsed[i] = class / g.cfg.ClassesPerTask
		}
	}

	if req.WithVariety {
		res.Variety = g.varietyScores(res.Inputs, req)
	}
	return res, nil
}

// varietyScores measures each sample's spread. The class-variety mode
// averages distance to the masked peer group; the plain mode uses distance
// to the pool centroid.
func (g *GaussianGenerator) varietyScores(inputs [][]float64, req domainTraining.SampleRequest) []float64 {
	scores := make([]float64, len(inputs))
	if req.ClassVariety && req.ClassVarietyMask != nil {
		for i := range inputs {
			var sum float64
			var n int
			for j := range inputs {
				if j == i || i >= len(req.ClassVarietyMask) || j >= len(req.ClassVarietyMask[i]) {
					continue
				}
				if req.ClassVarietyMask[i][j] == 0 {
					continue
				}
				sum += euclidean(inputs[i], inputs[j])
				n++
			}
			if n > 0 {
				scores[i] = sum / float64(n)
			}
		}
		return scores
	}

	centroid := make([]float64, g.cfg.InputDim)
	for _, x := range inputs {
		for j, v := range x {
			centroid[j] += v
		}
	}
	for j := range centroid {
		centroid[j] /= float64(len(inputs))
	}
	for i, x := range inputs {
		scores[i] = euclidean(x, centroid)
	}
	return scores
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for j := range a {
		d := a[j] - b[j]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// PerClass reports true: samples carry class provenance.
func (g *GaussianGenerator) PerClass() bool { return true }

// PriorGMM reports whether the class prior is a mixture.
func (g *GaussianGenerator) PriorGMM() bool { return g.cfg.PriorGMM }

// TaskGated reports false: the reference generator has no task gates.
func (g *GaussianGenerator) TaskGated() bool { return false }

// Reinit discards all learned class statistics.
func (g *GaussianGenerator) Reinit() {
	g.reset()
}

// Clone returns a structurally independent deep copy.
func (g *GaussianGenerator) Clone() domainTraining.Generator {
	state, ok := shared.DeepCopy(g.state).(*generatorState)
	if !ok {
		panic("reference: deep copy of generator state failed")
	}
	return &GaussianGenerator{
		cfg:   g.cfg,
		state: state,
		rng:   rand.New(rand.NewSource(g.cfg.Seed)),
		eval:  g.eval,
	}
}

// SetEvalMode switches between training and inference behavior. Eval-mode
// generators still sample; TrainBatch refuses to run.
func (g *GaussianGenerator) SetEvalMode(eval bool) { g.eval = eval }
