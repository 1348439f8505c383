package checkpoint

import (
	"testing"

	domainTraining "github.com/elliottower/brain-inspired-replay/internal/domain/training"
)

func newTestStore(t *testing.T, maxCheckpoints int) *Store {
	t.Helper()
	cfg := DefaultStoreConfig()
	cfg.MaxCheckpointsPerRun = maxCheckpoints
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RegisterRun(t *testing.T) {
	store := newTestStore(t, 10)

	id, err := store.RegisterRun(domainTraining.DefaultConfig())
	if err != nil {
		t.Fatalf("RegisterRun: %v", err)
	}
	if id == "" {
		t.Fatal("run ID must not be empty")
	}

	runs, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0] != id {
		t.Errorf("ListRuns = %v, want [%s]", runs, id)
	}
}

func TestStore_CheckpointRoundtrip(t *testing.T) {
	store := newTestStore(t, 10)
	runID, err := store.RegisterRun(domainTraining.DefaultConfig())
	if err != nil {
		t.Fatalf("RegisterRun: %v", err)
	}

	params := []float64{1.5, -2.25, 0}
	saved, err := store.SaveCheckpoint(runID, 2, 100, params)
	if err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if saved.ID == "" {
		t.Error("checkpoint ID must not be empty")
	}

	list, err := store.ListCheckpoints(runID)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d checkpoints, want 1", len(list))
	}
	cp := list[0]
	if cp.Task != 2 || cp.Iteration != 100 {
		t.Errorf("checkpoint at task %d iteration %d, want 2/100", cp.Task, cp.Iteration)
	}
	if len(cp.Parameters) != 3 || cp.Parameters[1] != -2.25 {
		t.Errorf("parameters = %v, want %v", cp.Parameters, params)
	}
}

func TestStore_PruneOldCheckpoints(t *testing.T) {
	store := newTestStore(t, 2)
	runID, err := store.RegisterRun(domainTraining.DefaultConfig())
	if err != nil {
		t.Fatalf("RegisterRun: %v", err)
	}

	for i := 1; i <= 5; i++ {
		if _, err := store.SaveCheckpoint(runID, 1, i*10, []float64{float64(i)}); err != nil {
			t.Fatalf("SaveCheckpoint %d: %v", i, err)
		}
	}

	list, err := store.ListCheckpoints(runID)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d checkpoints after pruning, want 2", len(list))
	}
	// The newest two survive.
	iters := map[int]bool{list[0].Iteration: true, list[1].Iteration: true}
	if !iters[40] || !iters[50] {
		t.Errorf("surviving iterations = %v, want 40 and 50", iters)
	}

	if stats := store.GetStats(); stats.PrunedCount == 0 {
		t.Error("pruned count must be recorded")
	}
}

func TestStore_Metrics(t *testing.T) {
	store := newTestStore(t, 10)
	runID, err := store.RegisterRun(domainTraining.DefaultConfig())
	if err != nil {
		t.Fatalf("RegisterRun: %v", err)
	}

	if err := store.RecordMetrics(runID, 1, 1, domainTraining.LossReport{"total": 1.5, "replay": 0.5}); err != nil {
		t.Fatalf("RecordMetrics: %v", err)
	}
	if err := store.RecordMetrics(runID, 1, 2, domainTraining.LossReport{"total": 1.2}); err != nil {
		t.Fatalf("RecordMetrics: %v", err)
	}

	rows, err := store.Metrics(runID)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d metric rows, want 3", len(rows))
	}
	found := false
	for _, row := range rows {
		if row.Iteration == 1 && row.Name == "replay" && row.Value == 0.5 {
			found = true
		}
	}
	if !found {
		t.Error("replay metric row missing")
	}
}

func TestStore_EmptyRun(t *testing.T) {
	store := newTestStore(t, 10)
	list, err := store.ListCheckpoints("missing")
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("got %d checkpoints for unknown run, want 0", len(list))
	}
}
