// Package training provides the engines of the continual-learning scheduler:
// task iterators, snapshots, replay sampling, curation, target labeling and
// importance tracking.
package training

import (
	"fmt"
	"math"
)

// logFloor guards cross-entropy against log(0) on degenerate probabilities.
const logFloor = 1e-12

// softmax returns the softmax of v, max-shifted for numerical stability.
func softmax(v []float64) []float64 {
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

// crossEntropy returns -log p[label] for a probability vector p.
func crossEntropy(p []float64, label int) (float64, error) {
	if label < 0 || label >= len(p) {
		return 0, fmt.Errorf("label %d outside score width %d", label, len(p))
	}
	v := p[label]
	if v < logFloor {
		v = logFloor
	}
	return -math.Log(v), nil
}

// padScores widens a probability vector to the given width with zero columns.
// The previous model assigns zero probability mass to classes it never saw.
func padScores(p []float64, width int) ([]float64, error) {
	if len(p) > width {
		return nil, fmt.Errorf("cannot pad scores of width %d down to %d", len(p), width)
	}
	out := make([]float64, width)
	copy(out, p)
	return out, nil
}

// klDivLoss computes the per-column mean of q_j*(ln q_j - logInput_j), the
// KL term with logInput treated as log-probabilities. The zero-padded
// previous-model scores are passed as logInput, matching the maximally
// interfered retrieval metric.
func klDivLoss(logInput, q []float64) (float64, error) {
	if len(logInput) != len(q) {
		return 0, fmt.Errorf("KL width mismatch: %d vs %d", len(logInput), len(q))
	}
	var sum float64
	for j := range q {
		v := q[j]
		if v < logFloor {
			v = logFloor
		}
		sum += q[j] * (math.Log(v) - logInput[j])
	}
	return sum / float64(len(q)), nil
}

// argmax returns the index of the largest value, ties to the first.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// truncate returns the first width columns of a score vector.
func truncate(v []float64, width int) ([]float64, error) {
	if width > len(v) {
		return nil, fmt.Errorf("score width %d shorter than required %d", len(v), width)
	}
	return v[:width], nil
}

// ceilDiv returns ceil(a/b) for positive b.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
