package training

import (
	"math/rand"
	"testing"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
)

func TestTaskIterators_DropLast(t *testing.T) {
	// 10 samples, batches of 4: two full batches per epoch, the short
	// remainder is dropped and a fresh permutation starts.
	cfg := domainTraining.DefaultConfig()
	cfg.Scenario = domainTraining.ScenarioClass
	cfg.BatchSize = 4
	data := makeDataset(10, func(i int) int { return 0 })

	it, err := NewTaskIterators([]domainTraining.Dataset{data}, cfg, 1, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewTaskIterators: %v", err)
	}

	seen := map[float64]bool{}
	for b := 0; b < 2; b++ {
		batch, err := it.Next()
		if err != nil {
			t.Fatalf("batch %d: %v", b, err)
		}
		if batch.Len() != 4 {
			t.Fatalf("batch size = %d, want 4", batch.Len())
		}
		for _, x := range batch.Inputs {
			if seen[x[0]] {
				t.Fatalf("sample %v repeated within one epoch", x[0])
			}
			seen[x[0]] = true
		}
	}

	// Third call crosses into a new epoch without error.
	if _, err := it.Next(); err != nil {
		t.Fatalf("epoch rebuild: %v", err)
	}
}

func TestTaskIterators_TaskScenarioRelabels(t *testing.T) {
	cfg := domainTraining.DefaultConfig()
	cfg.Scenario = domainTraining.ScenarioTask
	cfg.ClassesPerTask = 2
	cfg.BatchSize = 4
	// Task 2 carries global classes 2 and 3.
	data := makeDataset(8, func(i int) int { return 2 + i%2 })
	datasets := []domainTraining.Dataset{makeDataset(8, func(i int) int { return i % 2 }), data}

	it, err := NewTaskIterators(datasets, cfg, 2, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewTaskIterators: %v", err)
	}
	batch, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	for _, label := range batch.Labels {
		if label != 0 && label != 1 {
			t.Errorf("label %d not re-indexed into task-local range", label)
		}
	}
}

func TestTaskIterators_ClassScenarioKeepsGlobalLabels(t *testing.T) {
	cfg := domainTraining.DefaultConfig()
	cfg.Scenario = domainTraining.ScenarioClass
	cfg.ClassesPerTask = 2
	cfg.BatchSize = 4
	data := makeDataset(8, func(i int) int { return 2 + i%2 })
	datasets := []domainTraining.Dataset{makeDataset(8, func(i int) int { return i % 2 }), data}

	it, err := NewTaskIterators(datasets, cfg, 2, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewTaskIterators: %v", err)
	}
	batch, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	for _, label := range batch.Labels {
		if label != 2 && label != 3 {
			t.Errorf("label %d must stay global in the class scenario", label)
		}
	}
}

func TestTaskIterators_TooSmall(t *testing.T) {
	cfg := domainTraining.DefaultConfig()
	cfg.BatchSize = 32
	data := makeDataset(10, func(i int) int { return 0 })
	if _, err := NewTaskIterators([]domainTraining.Dataset{data}, cfg, 1, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("expected error for dataset smaller than one batch")
	}
}

func TestTaskIterators_OfflineTaskSplit(t *testing.T) {
	cfg := domainTraining.DefaultConfig()
	cfg.ReplayMode = domainTraining.ReplayOffline
	cfg.Scenario = domainTraining.ScenarioTask
	cfg.ClassesPerTask = 2
	cfg.BatchSize = 32

	datasets := []domainTraining.Dataset{
		makeDataset(40, func(i int) int { return i % 2 }),
		makeDataset(40, func(i int) int { return 2 + i%2 }),
		makeDataset(40, func(i int) int { return 4 + i%2 }),
	}
	it, err := NewTaskIterators(datasets, cfg, 3, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewTaskIterators: %v", err)
	}
	if !it.Offline() {
		t.Fatal("expected per-task mode")
	}

	batches, err := it.NextPerTask()
	if err != nil {
		t.Fatalf("NextPerTask: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	// ceil(32/3) = 11 samples per task.
	for id, batch := range batches {
		if batch.Len() != 11 {
			t.Errorf("task %d batch size = %d, want 11", id+1, batch.Len())
		}
		for _, label := range batch.Labels {
			if label != 0 && label != 1 {
				t.Errorf("task %d label %d not task-local", id+1, label)
			}
		}
	}

	if _, err := it.Next(); err == nil {
		t.Error("Next must fail in per-task mode")
	}
}

func TestTaskIterators_SingleModeRejectsPerTask(t *testing.T) {
	cfg := domainTraining.DefaultConfig()
	cfg.BatchSize = 4
	data := makeDataset(8, func(i int) int { return 0 })
	it, err := NewTaskIterators([]domainTraining.Dataset{data}, cfg, 1, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewTaskIterators: %v", err)
	}
	if it.Offline() {
		t.Fatal("expected single mode")
	}
	if _, err := it.NextPerTask(); err == nil {
		t.Error("NextPerTask must fail in single mode")
	}
}
