// Package reference provides concrete collaborators for the scheduler: a
// linear softmax classifier and a class-conditional Gaussian generator. They
// implement the domain contracts and back the CLI and the end-to-end tests;
// real deployments substitute their own models.
package reference

import (
	"fmt"
	"math"
	"math/rand"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
	"github.com/elliottower/brain-inspired-replay/internal/shared"
)

// LinearModelConfig configures the reference classifier.
type LinearModelConfig struct {
	// InputDim is the input vector width.
	InputDim int `json:"inputDim" yaml:"inputDim"`

	// Classes is the full label-space width.
	Classes int `json:"classes" yaml:"classes"`

	// LearningRate is the SGD step size.
	LearningRate float64 `json:"learningRate" yaml:"learningRate"`

	// ReplayTargets selects hard labels or soft scores for replayed samples.
	ReplayTargets domainTraining.ReplayTargetMode `json:"replayTargets" yaml:"replayTargets"`

	// SIC is the synaptic-intelligence regularization strength; zero
	// disables the path-integral penalty.
	SIC float64 `json:"siC" yaml:"siC"`

	// EWCLambda is the EWC regularization strength; zero disables Fisher
	// estimation at task boundaries.
	EWCLambda float64 `json:"ewcLambda" yaml:"ewcLambda"`

	// FisherSamples caps the samples used for Fisher estimation; zero uses
	// the whole dataset.
	FisherSamples int `json:"fisherSamples" yaml:"fisherSamples"`

	// Seed seeds parameter initialization.
	Seed int64 `json:"seed" yaml:"seed"`
}

// DefaultLinearModelConfig returns the default classifier configuration.
func DefaultLinearModelConfig() LinearModelConfig {
	return LinearModelConfig{
		InputDim:      16,
		Classes:       6,
		LearningRate:  0.1,
		ReplayTargets: domainTraining.TargetsHard,
		FisherSamples: 256,
	}
}

// linearState holds everything a snapshot must carry. Fields are exported so
// shared.DeepCopy reaches them.
type linearState struct {
	W            [][]float64
	B            []float64
	Fisher       []float64
	FisherAnchor []float64
	Omega        []float64
	OmegaAnchor  []float64
	LastGrads    []float64
}

// LinearModel is a softmax-regression classifier with optional EWC and SI
// penalties, trained by plain SGD.
type LinearModel struct {
	cfg   LinearModelConfig
	state *linearState
	rng   *rand.Rand
	eval  bool
}

// NewLinearModel builds and initializes the classifier.
func NewLinearModel(cfg LinearModelConfig) (*LinearModel, error) {
	if cfg.InputDim < 1 {
		return nil, fmt.Errorf("input dim must be >= 1, got %d", cfg.InputDim)
	}
	if cfg.Classes < 2 {
		return nil, fmt.Errorf("classes must be >= 2, got %d", cfg.Classes)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be > 0, got %g", cfg.LearningRate)
	}
	if cfg.ReplayTargets == "" {
		cfg.ReplayTargets = domainTraining.TargetsHard
	}

	m := &LinearModel{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	m.state = &linearState{
		B:           make([]float64, cfg.Classes),
		OmegaAnchor: make([]float64, cfg.Classes*cfg.InputDim+cfg.Classes),
	}
	m.initWeights()
	copy(m.state.OmegaAnchor, m.Parameters())
	return m, nil
}

func (m *LinearModel) initWeights() {
	m.state.W = make([][]float64, m.cfg.Classes)
	for c := range m.state.W {
		row := make([]float64, m.cfg.InputDim)
		for j := range row {
			row[j] = m.rng.NormFloat64() * 0.01
		}
		m.state.W[c] = row
	}
	for c := range m.state.B {
		m.state.B[c] = 0
	}
}

func (m *LinearModel) paramCount() int {
	return m.cfg.Classes*m.cfg.InputDim + m.cfg.Classes
}

func (m *LinearModel) widx(c, j int) int { return c*m.cfg.InputDim + j }
func (m *LinearModel) bidx(c int) int    { return m.cfg.Classes*m.cfg.InputDim + c }

func (m *LinearModel) logits(x []float64) []float64 {
	out := make([]float64, m.cfg.Classes)
	for c := 0; c < m.cfg.Classes; c++ {
		sum := m.state.B[c]
		row := m.state.W[c]
		for j, v := range x {
			sum += row[j] * v
		}
		out[c] = sum
	}
	return out
}

// activeCols resolves the score columns participating in the current-task
// part of an update.
func (m *LinearModel) activeCols(in domainTraining.BatchInput) []int {
	if in.Active == nil {
		return allCols(m.cfg.Classes)
	}
	if in.Active.Flat != nil {
		return in.Active.Flat
	}
	if in.Active.PerTask != nil {
		return in.Active.PerTask[in.Task-1]
	}
	return allCols(m.cfg.Classes)
}

func allCols(n int) []int {
	cols := make([]int, n)
	for i := range cols {
		cols[i] = i
	}
	return cols
}

// classLoss accumulates the cross-entropy loss and gradient of one labeled
// sample over the given columns. label indexes cols when local is true,
// otherwise it is a global class id.
func (m *LinearModel) classLoss(x []float64, label int, cols []int, local bool, weight float64, grads []float64) (float64, error) {
	global := label
	if local {
		if label < 0 || label >= len(cols) {
			return 0, fmt.Errorf("local label %d outside %d active columns", label, len(cols))
		}
		global = cols[label]
	}
	pos := -1
	for i, c := range cols {
		if c == global {
			pos = i
			break
		}
	}
	if pos < 0 {
		return 0, fmt.Errorf("label %d outside active columns", global)
	}

	logits := m.logits(x)
	sub := make([]float64, len(cols))
	for i, c := range cols {
		sub[i] = logits[c]
	}
	probs := softmaxVec(sub)

	for i, c := range cols {
		g := probs[i]
		if i == pos {
			g -= 1
		}
		g *= weight
		for j, v := range x {
			grads[m.widx(c, j)] += g * v
		}
		grads[m.bidx(c)] += g
	}

	p := probs[pos]
	if p < 1e-12 {
		p = 1e-12
	}
	return -math.Log(p) * weight, nil
}

// distillLoss accumulates the soft-target cross-entropy of one sample: the
// target distribution is the softmax of the previous model's scores.
func (m *LinearModel) distillLoss(x []float64, scores []float64, cols []int, weight float64, grads []float64) (float64, error) {
	if len(scores) != len(cols) {
		return 0, fmt.Errorf("soft target width %d does not match %d active columns", len(scores), len(cols))
	}
	target := softmaxVec(scores)

	logits := m.logits(x)
	sub := make([]float64, len(cols))
	for i, c := range cols {
		sub[i] = logits[c]
	}
	probs := softmaxVec(sub)

	var loss float64
	for i, c := range cols {
		g := (probs[i] - target[i]) * weight
		for j, v := range x {
			grads[m.widx(c, j)] += g * v
		}
		grads[m.bidx(c)] += g

		p := probs[i]
		if p < 1e-12 {
			p = 1e-12
		}
		loss += -target[i] * math.Log(p)
	}
	return loss * weight, nil
}

// TrainBatch performs one SGD step on the combined current/replay loss plus
// the active regularization penalties.
func (m *LinearModel) TrainBatch(in domainTraining.BatchInput) (domainTraining.LossReport, error) {
	if m.eval {
		return nil, fmt.Errorf("model is in eval mode")
	}

	grads := make([]float64, m.paramCount())
	var lossCurrent, lossReplay float64

	hasReplay := in.Replay != nil && in.Replay.Size() > 0
	currentWeight := 1.0
	replayWeight := 0.0
	if hasReplay {
		currentWeight = in.RNT
		replayWeight = 1 - in.RNT
	}

	switch {
	case in.PerTaskBatches != nil:
		// Offline task-incremental: every task's reduced batch contributes
		// equally to the current loss.
		share := currentWeight / float64(len(in.PerTaskBatches))
		for id, batch := range in.PerTaskBatches {
			cols := in.Active.PerTask[id]
			per := share / float64(batch.Len())
			for i, x := range batch.Inputs {
				l, err := m.classLoss(x, batch.Labels[i], cols, true, per, grads)
				if err != nil {
					return nil, fmt.Errorf("offline batch of task %d: %w", id+1, err)
				}
				lossCurrent += l
			}
		}

	case len(in.Inputs) > 0:
		cols := m.activeCols(in)
		local := in.Active != nil && in.Active.PerTask != nil
		per := currentWeight / float64(len(in.Inputs))
		for i, x := range in.Inputs {
			l, err := m.classLoss(x, in.Labels[i], cols, local, per, grads)
			if err != nil {
				return nil, fmt.Errorf("current batch: %w", err)
			}
			lossCurrent += l
		}
	}

	if hasReplay {
		share := replayWeight / float64(len(in.Replay.Sets))
		for id, set := range in.Replay.Sets {
			var cols []int
			local := false
			switch {
			case in.Replay.PerTask:
				cols = in.Active.PerTask[id]
				local = true
			case set.Scores != nil:
				cols = allCols(len(set.Scores[0]))
			default:
				cols = allCols(m.cfg.Classes)
			}

			per := share / float64(len(set.Inputs))
			for i, x := range set.Inputs {
				var l float64
				var err error
				if set.Scores != nil {
					l, err = m.distillLoss(x, set.Scores[i], cols, per, grads)
				} else {
					l, err = m.classLoss(x, set.Labels[i], cols, local, per, grads)
				}
				if err != nil {
					return nil, fmt.Errorf("replay set %d: %w", id, err)
				}
				lossReplay += l
			}
		}
	}

	params := m.Parameters()
	var lossEWC, lossSI float64
	if m.cfg.EWCLambda > 0 && m.state.Fisher != nil {
		for i := range params {
			diff := params[i] - m.state.FisherAnchor[i]
			lossEWC += m.state.Fisher[i] * diff * diff
			grads[i] += m.cfg.EWCLambda * m.state.Fisher[i] * diff
		}
		lossEWC *= m.cfg.EWCLambda / 2
	}
	if m.cfg.SIC > 0 && m.state.Omega != nil {
		for i := range params {
			diff := params[i] - m.state.OmegaAnchor[i]
			lossSI += m.state.Omega[i] * diff * diff
			grads[i] += m.cfg.SIC * m.state.Omega[i] * diff
		}
		lossSI *= m.cfg.SIC / 2
	}

	for c := 0; c < m.cfg.Classes; c++ {
		for j := 0; j < m.cfg.InputDim; j++ {
			m.state.W[c][j] -= m.cfg.LearningRate * grads[m.widx(c, j)]
		}
		m.state.B[c] -= m.cfg.LearningRate * grads[m.bidx(c)]
	}
	m.state.LastGrads = grads

	return domainTraining.LossReport{
		"total":   lossCurrent + lossReplay + lossEWC + lossSI,
		"current": lossCurrent,
		"replay":  lossReplay,
		"ewc":     lossEWC,
		"si":      lossSI,
	}, nil
}

// Classify returns raw logits, one row per input.
func (m *LinearModel) Classify(inputs [][]float64, notHidden bool) ([][]float64, error) {
	out := make([][]float64, len(inputs))
	for i, x := range inputs {
		if len(x) != m.cfg.InputDim {
			return nil, fmt.Errorf("input %d has width %d, want %d", i, len(x), m.cfg.InputDim)
		}
		out[i] = m.logits(x)
	}
	return out, nil
}

// OutputWidth returns the label-space width.
func (m *LinearModel) OutputWidth() int { return m.cfg.Classes }

// ReplayTargets reports the configured replay-target mode.
func (m *LinearModel) ReplayTargets() domainTraining.ReplayTargetMode { return m.cfg.ReplayTargets }

// HasTaskMasks reports false: the reference model is single-headed.
func (m *LinearModel) HasTaskMasks() bool { return false }

// ApplyTaskMask fails: the reference model carries no task masks.
func (m *LinearModel) ApplyTaskMask(task int) error {
	return fmt.Errorf("reference model has no task masks")
}

// Parameters returns the trainable parameters as one flat vector, weights
// row-major then biases.
func (m *LinearModel) Parameters() []float64 {
	out := make([]float64, 0, m.paramCount())
	for _, row := range m.state.W {
		out = append(out, row...)
	}
	out = append(out, m.state.B...)
	return out
}

// Gradients returns a copy of the most recent step's gradients.
func (m *LinearModel) Gradients() []float64 {
	if m.state.LastGrads == nil {
		return nil
	}
	out := make([]float64, len(m.state.LastGrads))
	copy(out, m.state.LastGrads)
	return out
}

// SIEnabled reports whether the path-integral penalty is active.
func (m *LinearModel) SIEnabled() bool { return m.cfg.SIC > 0 }

// EWCEnabled reports whether Fisher estimation runs at task boundaries.
func (m *LinearModel) EWCEnabled() bool { return m.cfg.EWCLambda > 0 }

// EstimateFisher estimates the diagonal Fisher information over the dataset,
// restricted to the allowed classes, and accumulates it into the quadratic
// penalty anchored at the current parameters.
func (m *LinearModel) EstimateFisher(data domainTraining.Dataset, allowedClasses []int) error {
	cols := allowedClasses
	if cols == nil {
		cols = allCols(m.cfg.Classes)
	}

	n := data.Len()
	if m.cfg.FisherSamples > 0 && n > m.cfg.FisherSamples {
		n = m.cfg.FisherSamples
	}
	if n == 0 {
		return fmt.Errorf("fisher estimation over an empty dataset")
	}

	fisher := make([]float64, m.paramCount())
	grads := make([]float64, m.paramCount())
	for i := 0; i < n; i++ {
		x, y := data.Sample(i)
		for j := range grads {
			grads[j] = 0
		}
		if _, err := m.classLoss(x, y, cols, false, 1, grads); err != nil {
			return fmt.Errorf("fisher sample %d: %w", i, err)
		}
		for j, g := range grads {
			fisher[j] += g * g
		}
	}
	for j := range fisher {
		fisher[j] /= float64(n)
	}

	if m.state.Fisher == nil {
		m.state.Fisher = fisher
	} else {
		for j := range fisher {
			m.state.Fisher[j] += fisher[j]
		}
	}
	m.state.FisherAnchor = m.Parameters()
	return nil
}

// UpdateOmega folds the path-integral estimate into the SI importance term,
// normalized by the squared parameter displacement over the task, damped by
// epsilon, and re-anchors at the current parameters.
func (m *LinearModel) UpdateOmega(w []float64, epsilon float64) error {
	params := m.Parameters()
	if len(w) != len(params) {
		return fmt.Errorf("importance vector width %d does not match %d parameters", len(w), len(params))
	}
	if m.state.Omega == nil {
		m.state.Omega = make([]float64, len(params))
	}
	for i := range params {
		delta := params[i] - m.state.OmegaAnchor[i]
		m.state.Omega[i] += w[i] / (delta*delta + epsilon)
	}
	m.state.OmegaAnchor = params
	return nil
}

// Reinit re-randomizes weights and biases; importance buffers survive.
func (m *LinearModel) Reinit() {
	m.initWeights()
}

// Clone returns a structurally independent deep copy.
func (m *LinearModel) Clone() domainTraining.Model {
	state, ok := shared.DeepCopy(m.state).(*linearState)
	if !ok {
		panic("reference: deep copy of model state failed")
	}
	return &LinearModel{
		cfg:   m.cfg,
		state: state,
		rng:   rand.New(rand.NewSource(m.cfg.Seed)),
		eval:  m.eval,
	}
}

// SetEvalMode switches between training and inference behavior. In eval
// mode TrainBatch refuses to run, which protects snapshots.
func (m *LinearModel) SetEvalMode(eval bool) { m.eval = eval }

func softmaxVec(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	maxV := v[0]
	for _, x := range v[1:] {
		if x > maxV {
			maxV = x
		}
	}
	var sum float64
	for i, x := range v {
		out[i] = math.Exp(x - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
