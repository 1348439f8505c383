package training

import (
	"fmt"
	"math/rand"
	"sort"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
)

// Curator selects a class-balanced, high-value subset from an over-generated
// candidate pool. It scores the pool against the frozen previous model and
// against a disposable clone of the current model trained one step without
// replay, which simulates the forgetting that replay is meant to prevent.
type Curator struct {
	cfg domainTraining.Config
	rng *rand.Rand
}

// NewCurator builds a curator for the given configuration.
func NewCurator(cfg domainTraining.Config, rng *rand.Rand) *Curator {
	return &Curator{cfg: cfg, rng: rng}
}

// Curate reduces the candidate pool to exactly the configured replay size.
// model is the live current model; it is cloned for the forgetting
// simulation and never mutated. prevModel is the frozen snapshot used for
// the before-update scores.
func (c *Curator) Curate(pool domainTraining.SampleResult, allowedClasses []int,
	model, prevModel domainTraining.Model, current domainTraining.Batch,
	active *domainTraining.ActiveClasses, task int, rnt float64, generative bool,
) (domainTraining.SampleResult, error) {

	method := c.cfg.SampleMethod
	if len(allowedClasses) == 0 {
		return domainTraining.SampleResult{}, fmt.Errorf(
			"curation policy %q requires an explicit allowed-class range", method)
	}

	prevClasses := c.cfg.ClassesPerTask * (task - 1)
	newClasses := c.cfg.ClassesPerTask * task
	notHidden := !generative

	// Before-update scores from the frozen previous model, restricted to the
	// label space known at generation time.
	scoresPrev, err := prevModel.Classify(pool.Inputs, notHidden)
	if err != nil {
		return domainTraining.SampleResult{}, fmt.Errorf("scoring pool with previous model: %w", err)
	}
	n := len(pool.Inputs)
	probsOld := make([][]float64, n)
	lossOld := make([]float64, n)
	for i := 0; i < n; i++ {
		seen, err := truncate(scoresPrev[i], prevClasses)
		if err != nil {
			return domainTraining.SampleResult{}, err
		}
		probsOld[i] = softmax(seen)
		if lossOld[i], err = crossEntropy(probsOld[i], pool.Labels[i]); err != nil {
			return domainTraining.SampleResult{}, fmt.Errorf("candidate %d: %w", i, err)
		}
	}

	// Disposable clone: one update on the current task's real batch only.
	// Without replay this step forgets; how much each candidate suffers is
	// the curation signal. The clone is discarded when this call returns.
	clone := model.Clone()
	if _, err := clone.TrainBatch(domainTraining.BatchInput{
		Inputs:     current.Inputs,
		Labels:     current.Labels,
		Active:     active,
		Task:       task,
		RNT:        rnt,
		FreezeConv: c.cfg.FreezeConv,
	}); err != nil {
		return domainTraining.SampleResult{}, fmt.Errorf("forgetting simulation step: %w", err)
	}

	scoresNew, err := clone.Classify(pool.Inputs, notHidden)
	if err != nil {
		return domainTraining.SampleResult{}, fmt.Errorf("scoring pool with updated clone: %w", err)
	}
	probsNew := make([][]float64, n)
	for i := 0; i < n; i++ {
		cur, err := truncate(scoresNew[i], newClasses)
		if err != nil {
			return domainTraining.SampleResult{}, err
		}
		probsNew[i] = softmax(cur)
	}

	metric, err := c.selectionMetric(method, pool, probsOld, probsNew, lossOld, newClasses)
	if err != nil {
		return domainTraining.SampleResult{}, err
	}

	// Rank candidates by metric, descending, ties kept in pool order.
	ranked := make([]int, n)
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return metric[ranked[a]] > metric[ranked[b]]
	})

	replaySize := c.cfg.ReplaySize()
	var selected []int
	if method.ClassBalanced() {
		selected = balancedSelect(ranked, pool.Labels, allowedClasses, replaySize)
	} else {
		c.rng.Shuffle(len(ranked), func(a, b int) {
			ranked[a], ranked[b] = ranked[b], ranked[a]
		})
		selected = ranked[:replaySize]
	}
	if len(selected) != replaySize {
		return domainTraining.SampleResult{}, fmt.Errorf(
			"curation selected %d candidates, want %d", len(selected), replaySize)
	}

	out := domainTraining.SampleResult{
		Inputs: make([][]float64, replaySize),
		Labels: make([]int, replaySize),
	}
	if pool.TaskUsed != nil {
		out.TaskUsed = make([]int, replaySize)
	}
	for i, idx := range selected {
		out.Inputs[i] = pool.Inputs[idx]
		out.Labels[i] = pool.Labels[idx]
		if pool.TaskUsed != nil {
			out.TaskUsed[i] = pool.TaskUsed[idx]
		}
	}
	return out, nil
}

// selectionMetric computes the per-candidate ranking score for the policy.
func (c *Curator) selectionMetric(method domainTraining.SampleMethod,
	pool domainTraining.SampleResult, probsOld, probsNew [][]float64,
	lossOld []float64, newClasses int) ([]float64, error) {

	n := len(probsNew)
	metric := make([]float64, n)

	switch method {
	case domainTraining.SampleCurated, domainTraining.SampleCuratedSoftmax:
		for i := 0; i < n; i++ {
			lossNew, err := crossEntropy(probsNew[i], pool.Labels[i])
			if err != nil {
				return nil, fmt.Errorf("candidate %d: %w", i, err)
			}
			metric[i] = lossNew - lossOld[i]
		}

	case domainTraining.SampleCuratedVariety, domainTraining.SampleCuratedClassVariety:
		diff := make([]float64, n)
		for i := 0; i < n; i++ {
			lossNew, err := crossEntropy(probsNew[i], pool.Labels[i])
			if err != nil {
				return nil, fmt.Errorf("candidate %d: %w", i, err)
			}
			diff[i] = lossNew - lossOld[i]
		}
		w := c.cfg.VarietyWeight
		diffSM := softmax(diff)
		varSM := softmax(pool.Variety)
		for i := 0; i < n; i++ {
			metric[i] = (1-w)*diffSM[i] + w*varSM[i]
		}

	case domainTraining.SampleInterfered:
		w := c.cfg.VarietyWeight
		varSM := softmax(pool.Variety)
		for i := 0; i < n; i++ {
			padded, err := padScores(probsOld[i], newClasses)
			if err != nil {
				return nil, fmt.Errorf("candidate %d: %w", i, err)
			}
			kl, err := klDivLoss(padded, probsNew[i])
			if err != nil {
				return nil, fmt.Errorf("candidate %d: %w", i, err)
			}
			mir := kl - c.cfg.MIRCoef*lossOld[i]
			metric[i] = (1-w)*mir + w*varSM[i]
		}

	case domainTraining.SampleMisclassified, domainTraining.SampleUniformLarge, domainTraining.SampleRandomLarge:
		// Confidence assigned to the newest class: candidates the updated
		// clone now mistakes for new data rank first.
		for i := 0; i < n; i++ {
			metric[i] = 2 * probsNew[i][newClasses-1]
		}

	default:
		return nil, fmt.Errorf("sample method %q has no curation metric", method)
	}

	return metric, nil
}

// balancedSelect picks the top-ranked candidates per class. The per-class
// quota distributes the replay size round-robin over the allowed classes, so
// earlier classes absorb any remainder. When a class cannot fill its quota
// from the pool, the shortfall is covered by the best remaining candidates
// regardless of class, keeping the returned size exact.
func balancedSelect(ranked, labels, allowedClasses []int, replaySize int) []int {
	quota := make(map[int]int, len(allowedClasses))
	for j := 0; j < replaySize; j++ {
		quota[allowedClasses[j%len(allowedClasses)]]++
	}

	taken := make([]bool, len(labels))
	selected := make([]int, 0, replaySize)
	for _, class := range allowedClasses {
		want := quota[class]
		for _, idx := range ranked {
			if want == 0 {
				break
			}
			if !taken[idx] && labels[idx] == class {
				taken[idx] = true
				selected = append(selected, idx)
				want--
			}
		}
	}
	for _, idx := range ranked {
		if len(selected) == replaySize {
			break
		}
		if !taken[idx] {
			taken[idx] = true
			selected = append(selected, idx)
		}
	}
	return selected
}
