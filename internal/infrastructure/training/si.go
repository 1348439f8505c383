package training

import (
	"fmt"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
)

// PathIntegral accumulates the synaptic-intelligence importance estimate of
// each parameter across one task: W[i] sums -grad[i]*(p[i]-pOld[i]) over
// optimizer steps, with pOld refreshed after every step. The accumulator is
// zeroed at task start and consumed at the task boundary.
type PathIntegral struct {
	w    []float64
	pOld []float64
}

// NewPathIntegral starts a fresh accumulator from the model's current
// parameter values.
func NewPathIntegral(params []float64) *PathIntegral {
	pOld := make([]float64, len(params))
	copy(pOld, params)
	return &PathIntegral{
		w:    make([]float64, len(params)),
		pOld: pOld,
	}
}

// Accumulate records one optimizer step. grads and params must align with
// the parameter vector the accumulator was started from; a changed parameter
// set is a fatal mismatch.
func (p *PathIntegral) Accumulate(grads, params []float64) error {
	if len(params) != len(p.pOld) {
		return fmt.Errorf("parameter count changed from %d to %d during task", len(p.pOld), len(params))
	}
	if grads != nil && len(grads) != len(p.pOld) {
		return fmt.Errorf("gradient count %d does not match %d parameters", len(grads), len(p.pOld))
	}
	for i := range p.pOld {
		if grads != nil {
			p.w[i] += -grads[i] * (params[i] - p.pOld[i])
		}
		p.pOld[i] = params[i]
	}
	return nil
}

// W returns a copy of the running importance estimate.
func (p *PathIntegral) W() []float64 {
	out := make([]float64, len(p.w))
	copy(out, p.w)
	return out
}

// Consolidate folds the accumulated estimate into the model's importance
// term and resets the accumulator for the next task. epsilon damps the
// normalization against near-zero parameter displacement.
func (p *PathIntegral) Consolidate(m domainTraining.Model, epsilon float64) error {
	if err := m.UpdateOmega(p.W(), epsilon); err != nil {
		return fmt.Errorf("folding path integral: %w", err)
	}
	for i := range p.w {
		p.w[i] = 0
	}
	copy(p.pOld, m.Parameters())
	return nil
}
