package training

import (
	"fmt"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
)

// sliceDataset is a fixed in-memory dataset for tests.
type sliceDataset struct {
	inputs [][]float64
	labels []int
}

func (d *sliceDataset) Len() int                      { return len(d.inputs) }
func (d *sliceDataset) Sample(i int) ([]float64, int) { return d.inputs[i], d.labels[i] }

// makeDataset builds n samples whose first input component is the sample
// index, labeled by the given function.
func makeDataset(n int, label func(i int) int) *sliceDataset {
	d := &sliceDataset{
		inputs: make([][]float64, n),
		labels: make([]int, n),
	}
	for i := 0; i < n; i++ {
		d.inputs[i] = []float64{float64(i)}
		d.labels[i] = label(i)
	}
	return d
}

// stubModel is a scriptable Model. scoreFn maps an input to a score row;
// tests inspect trainCalls and appliedMasks afterwards.
type stubModel struct {
	width        int
	targets      domainTraining.ReplayTargetMode
	masked       bool
	scoreFn      func(x []float64) []float64
	trainCalls   []domainTraining.BatchInput
	appliedMasks []int
	classifyN    int
	params       []float64
	grads        []float64
	eval         bool
}

func newStubModel(width int) *stubModel {
	return &stubModel{
		width:   width,
		targets: domainTraining.TargetsHard,
		scoreFn: func(x []float64) []float64 { return make([]float64, width) },
		params:  []float64{0, 0},
	}
}

func (m *stubModel) TrainBatch(in domainTraining.BatchInput) (domainTraining.LossReport, error) {
	m.trainCalls = append(m.trainCalls, in)
	return domainTraining.LossReport{"total": 1}, nil
}

func (m *stubModel) Classify(inputs [][]float64, notHidden bool) ([][]float64, error) {
	m.classifyN++
	out := make([][]float64, len(inputs))
	for i, x := range inputs {
		out[i] = m.scoreFn(x)
	}
	return out, nil
}

func (m *stubModel) OutputWidth() int                                { return m.width }
func (m *stubModel) ReplayTargets() domainTraining.ReplayTargetMode { return m.targets }
func (m *stubModel) HasTaskMasks() bool                              { return m.masked }

func (m *stubModel) ApplyTaskMask(task int) error {
	if !m.masked {
		return fmt.Errorf("no task masks")
	}
	m.appliedMasks = append(m.appliedMasks, task)
	return nil
}

func (m *stubModel) Parameters() []float64 {
	out := make([]float64, len(m.params))
	copy(out, m.params)
	return out
}

func (m *stubModel) Gradients() []float64 {
	if m.grads == nil {
		return nil
	}
	out := make([]float64, len(m.grads))
	copy(out, m.grads)
	return out
}

func (m *stubModel) SIEnabled() bool  { return false }
func (m *stubModel) EWCEnabled() bool { return false }

func (m *stubModel) EstimateFisher(data domainTraining.Dataset, allowedClasses []int) error {
	return nil
}

func (m *stubModel) UpdateOmega(w []float64, epsilon float64) error { return nil }
func (m *stubModel) Reinit()                                        {}

func (m *stubModel) Clone() domainTraining.Model {
	clone := *m
	clone.trainCalls = nil
	clone.appliedMasks = nil
	clone.params = m.Parameters()
	return &clone
}

func (m *stubModel) SetEvalMode(eval bool) { m.eval = eval }

// stubGen is a scriptable Generator. The default sample function assigns
// classes round-robin over the allowed set and ascending variety scores.
type stubGen struct {
	perClass bool
	priorGMM bool
	gated    bool
	cpt      int
	reqs     []domainTraining.SampleRequest
	sampleFn func(req domainTraining.SampleRequest) (domainTraining.SampleResult, error)
	trainN   int
	eval     bool
}

func newStubGen(cpt int) *stubGen {
	g := &stubGen{cpt: cpt}
	g.sampleFn = func(req domainTraining.SampleRequest) (domainTraining.SampleResult, error) {
		res := domainTraining.SampleResult{
			Inputs: make([][]float64, req.Count),
		}
		if !req.OnlyInputs {
			res.Labels = make([]int, req.Count)
			res.TaskUsed = make([]int, req.Count)
		}
		if req.WithVariety {
			res.Variety = make([]float64, req.Count)
		}
		for i := 0; i < req.Count; i++ {
			res.Inputs[i] = []float64{float64(i)}
			class := i
			if req.AllowedClasses != nil {
				class = req.AllowedClasses[i%len(req.AllowedClasses)]
			}
			if !req.OnlyInputs {
				res.Labels[i] = class
				res.TaskUsed[i] = class / g.cpt
			}
			if req.WithVariety {
				res.Variety[i] = float64(i)
			}
		}
		return res, nil
	}
	return g
}

func (g *stubGen) TrainBatch(in domainTraining.BatchInput) (domainTraining.LossReport, error) {
	g.trainN++
	return domainTraining.LossReport{"recon": 1}, nil
}

func (g *stubGen) Sample(req domainTraining.SampleRequest) (domainTraining.SampleResult, error) {
	g.reqs = append(g.reqs, req)
	return g.sampleFn(req)
}

func (g *stubGen) PerClass() bool  { return g.perClass }
func (g *stubGen) PriorGMM() bool  { return g.priorGMM }
func (g *stubGen) TaskGated() bool { return g.gated }
func (g *stubGen) Reinit()         {}

func (g *stubGen) Clone() domainTraining.Generator {
	clone := *g
	clone.reqs = nil
	return &clone
}

func (g *stubGen) SetEvalMode(eval bool) { g.eval = eval }
