package training

import (
	"fmt"
	"math/rand"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
)

// cursor is one cyclic batch iterator over a dataset: a shuffled permutation
// consumed batch by batch, rebuilt when the remaining-batch counter hits
// zero. Batches that would be short are dropped, as with drop_last loaders.
type cursor struct {
	data      domainTraining.Dataset
	batchSize int
	perm      []int
	offset    int
	remaining int
}

func (c *cursor) next(rng *rand.Rand) (domainTraining.Batch, error) {
	if c.remaining == 0 {
		n := c.data.Len()
		if n < c.batchSize {
			return domainTraining.Batch{}, fmt.Errorf(
				"dataset of %d samples cannot fill one batch of %d", n, c.batchSize)
		}
		c.perm = rng.Perm(n)
		c.offset = 0
		c.remaining = n / c.batchSize
	}

	batch := domainTraining.Batch{
		Inputs: make([][]float64, c.batchSize),
		Labels: make([]int, c.batchSize),
	}
	for i := 0; i < c.batchSize; i++ {
		x, y := c.data.Sample(c.perm[c.offset+i])
		batch.Inputs[i] = x
		batch.Labels[i] = y
	}
	c.offset += c.batchSize
	c.remaining--
	return batch, nil
}

// TaskIterators manages the batch iterators of one task. In the offline
// task-incremental mode it keeps one iterator per task seen so far, each with
// a batch size reduced so the combined batch stays near the configured size;
// otherwise it keeps a single iterator over the active task's dataset.
type TaskIterators struct {
	cfg     domainTraining.Config
	task    int
	rng     *rand.Rand
	single  *cursor
	perTask []*cursor
}

// NewTaskIterators builds the iterators for the given 1-based task.
// datasets holds the training dataset of every task; in the single-iterator
// mode only datasets[task-1] is consulted (already concatenated by the caller
// for offline replay outside the task scenario).
func NewTaskIterators(datasets []domainTraining.Dataset, cfg domainTraining.Config, task int, rng *rand.Rand) (*TaskIterators, error) {
	if task < 1 || task > len(datasets) {
		return nil, fmt.Errorf("task %d out of range for %d datasets", task, len(datasets))
	}
	it := &TaskIterators{cfg: cfg, task: task, rng: rng}

	if cfg.ReplayMode == domainTraining.ReplayOffline && cfg.Scenario == domainTraining.ScenarioTask {
		split := ceilDiv(cfg.BatchSize, task)
		it.perTask = make([]*cursor, task)
		for id := 0; id < task; id++ {
			if datasets[id].Len() < split {
				return nil, fmt.Errorf(
					"task %d dataset of %d samples cannot fill one batch of %d", id+1, datasets[id].Len(), split)
			}
			it.perTask[id] = &cursor{data: datasets[id], batchSize: split}
		}
		return it, nil
	}

	if datasets[task-1].Len() < cfg.BatchSize {
		return nil, fmt.Errorf(
			"task %d dataset of %d samples cannot fill one batch of %d", task, datasets[task-1].Len(), cfg.BatchSize)
	}
	it.single = &cursor{data: datasets[task-1], batchSize: cfg.BatchSize}
	return it, nil
}

// Offline reports whether this manager operates one iterator per task.
func (it *TaskIterators) Offline() bool { return it.perTask != nil }

// Next advances the single active-task iterator and returns the next batch.
// Labels are re-indexed into the task's local class range in the
// task-incremental scenario.
func (it *TaskIterators) Next() (domainTraining.Batch, error) {
	if it.single == nil {
		return domainTraining.Batch{}, fmt.Errorf("task iterators are in per-task mode")
	}
	batch, err := it.single.next(it.rng)
	if err != nil {
		return domainTraining.Batch{}, err
	}
	if it.cfg.Scenario == domainTraining.ScenarioTask {
		base := it.cfg.ClassesPerTask * (it.task - 1)
		for i := range batch.Labels {
			batch.Labels[i] -= base
		}
	}
	return batch, nil
}

// NextPerTask advances every per-task iterator and returns one reduced batch
// per task so far, labels re-indexed into each task's local class range.
func (it *TaskIterators) NextPerTask() ([]domainTraining.Batch, error) {
	if it.perTask == nil {
		return nil, fmt.Errorf("task iterators are in single mode")
	}
	batches := make([]domainTraining.Batch, len(it.perTask))
	for id, cur := range it.perTask {
		batch, err := cur.next(it.rng)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", id+1, err)
		}
		base := it.cfg.ClassesPerTask * id
		for i := range batch.Labels {
			batch.Labels[i] -= base
		}
		batches[id] = batch
	}
	return batches, nil
}
