package artifacts

import (
	"context"
	"errors"
	"math"
	"testing"

	"neurocca/domain/connectome"
	"neurocca/domain/core"
)

func TestGobStore_NullDistributionRoundTrip(t *testing.T) {
	store, err := NewGobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewGobStore: %v", err)
	}
	ctx := context.Background()

	run := core.NewRunID()
	dist := &connectome.NullDistribution{
		Run:           run,
		Seed:          42,
		Reg:           0.1,
		NumComponents: 2,
		Trials:        3,
		Completed:     3,
		Rows: [][]float64{
			{0.3141592653589793, 0.1},
			{math.NaN(), math.NaN()},
			{1e-300, math.Nextafter(0.5, 1)},
		},
		CreatedAt: core.Now(),
	}
	if err := store.SaveNullDistribution(ctx, dist); err != nil {
		t.Fatalf("SaveNullDistribution: %v", err)
	}

	loaded, err := store.LoadNullDistribution(ctx, run)
	if err != nil {
		t.Fatalf("LoadNullDistribution: %v", err)
	}
	if loaded.Seed != dist.Seed || loaded.Trials != dist.Trials || loaded.Reg != dist.Reg {
		t.Fatalf("metadata changed in round trip: %+v", loaded)
	}
	for i, row := range dist.Rows {
		for j, v := range row {
			// bit-exact comparison, NaN payloads included
			if math.Float64bits(loaded.Rows[i][j]) != math.Float64bits(v) {
				t.Fatalf("row %d col %d not bit-exact: %x vs %x",
					i, j, math.Float64bits(loaded.Rows[i][j]), math.Float64bits(v))
			}
		}
	}
}

func TestGobStore_FeatureSummaryRoundTrip(t *testing.T) {
	store, err := NewGobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewGobStore: %v", err)
	}
	ctx := context.Background()

	subjects := []core.SubjectID{"100307", "100408"}
	pairs := []connectome.LabelPair{{A: "Vis", B: "Vis"}}
	rest := connectome.NewFeatureMatrix(subjects, pairs)
	rest.SetRow(0, []float64{0.25})
	rest.SetRow(1, []float64{-0.5})
	task := connectome.NewFeatureMatrix(subjects, pairs)
	task.SetRow(0, []float64{0.75})
	task.SetRow(1, []float64{0.125})

	run := core.NewRunID()
	summary := &connectome.FeatureSummary{
		Run:       run,
		CreatedAt: core.Now(),
		Rest:      rest,
		Tasks: map[core.TaskName]map[core.ConditionName]*connectome.FeatureMatrix{
			"WM": {"2bk_faces": task},
		},
	}
	if err := store.SaveFeatureSummary(ctx, summary); err != nil {
		t.Fatalf("SaveFeatureSummary: %v", err)
	}

	loaded, err := store.LoadFeatureSummary(ctx, run)
	if err != nil {
		t.Fatalf("LoadFeatureSummary: %v", err)
	}
	if loaded.Rest.At(1, 0) != -0.5 {
		t.Errorf("rest features changed in round trip")
	}
	cond, err := loaded.Condition("WM", "2bk_faces")
	if err != nil {
		t.Fatalf("Condition: %v", err)
	}
	if cond.At(0, 0) != 0.75 || cond.At(1, 0) != 0.125 {
		t.Errorf("task features changed in round trip")
	}
}

func TestGobStore_MissingArtifact(t *testing.T) {
	store, err := NewGobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewGobStore: %v", err)
	}
	_, err = store.LoadNullDistribution(context.Background(), core.NewRunID())
	if !errors.Is(err, core.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	_, err = store.LoadFeatureSummary(context.Background(), core.NewRunID())
	if !errors.Is(err, core.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestGobStore_OverwriteReplacesArtifact(t *testing.T) {
	store, err := NewGobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewGobStore: %v", err)
	}
	ctx := context.Background()
	run := core.NewRunID()

	first := &connectome.NullDistribution{Run: run, Trials: 1, Completed: 1, Rows: [][]float64{{0.1}}, CreatedAt: core.Now()}
	second := &connectome.NullDistribution{Run: run, Trials: 2, Completed: 2, Rows: [][]float64{{0.2}, {0.3}}, CreatedAt: core.Now()}
	if err := store.SaveNullDistribution(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.SaveNullDistribution(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	loaded, err := store.LoadNullDistribution(ctx, run)
	if err != nil {
		t.Fatalf("LoadNullDistribution: %v", err)
	}
	if loaded.Trials != 2 {
		t.Fatalf("expected the overwrite to win, got %d trials", loaded.Trials)
	}
}
