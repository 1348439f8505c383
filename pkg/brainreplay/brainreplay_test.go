package brainreplay

import (
	"context"
	"testing"
)

func TestFacade_EndToEnd(t *testing.T) {
	modelCfg := DefaultLinearModelConfig()
	modelCfg.InputDim = 4
	modelCfg.Classes = 4
	modelCfg.Seed = 1
	model, err := NewLinearModel(modelCfg)
	if err != nil {
		t.Fatalf("NewLinearModel: %v", err)
	}

	genCfg := DefaultGeneratorConfig()
	genCfg.InputDim = 4
	genCfg.Classes = 4
	genCfg.Seed = 1
	gen, err := NewGaussianGenerator(genCfg)
	if err != nil {
		t.Fatalf("NewGaussianGenerator: %v", err)
	}

	cfg := DefaultConfig()
	cfg.ReplayMode = ReplayGenerative
	cfg.Scenario = ScenarioClass
	cfg.SampleMethod = SampleCurated
	cfg.ClassesPerTask = 2
	cfg.Iters = 20
	cfg.BatchSize = 8
	cfg.Seed = 1

	var updates int
	scheduler, err := New(model, cfg,
		WithGenerator(gen),
		WithLossCallback(func(p Progress) { updates++ }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	datasets := make([]Dataset, 2)
	for task := range datasets {
		ds, err := NewClusterTask([]int{2 * task, 2*task + 1}, 20, 4, 0.3, int64(task))
		if err != nil {
			t.Fatalf("NewClusterTask: %v", err)
		}
		datasets[task] = ds
	}

	if err := scheduler.TrainContinual(context.Background(), datasets); err != nil {
		t.Fatalf("TrainContinual: %v", err)
	}
	if updates != 40 {
		t.Errorf("got %d updates, want 40", updates)
	}

	combined := Concat(datasets...)
	if combined.Len() != 80 {
		t.Errorf("combined dataset has %d samples, want 80", combined.Len())
	}
}

func TestFacade_ExperimentRun(t *testing.T) {
	cfg := DefaultExperimentConfig()
	cfg.Training.Iters = 20
	cfg.Data.SamplesPerClass = 20
	cfg.Eval.Every = 0

	runner, err := NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer runner.Close()

	res, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Final) != cfg.Data.Tasks {
		t.Errorf("got %d final accuracies, want %d", len(res.Final), cfg.Data.Tasks)
	}
}
