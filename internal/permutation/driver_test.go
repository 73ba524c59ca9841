package permutation

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"neurocca/adapters/rng"
	"neurocca/adapters/stats/connectivity"
	"neurocca/domain/cca"
	"neurocca/domain/connectome"
	"neurocca/domain/core"
	"neurocca/internal/cancorr"
	"neurocca/internal/testkit"
)

func testDriver() *Driver {
	return NewDriver(connectivity.NewReducer(), cancorr.NewEngine(), rng.NewSeededAdapter(), nil)
}

func testCaches(t *testing.T, seed int64, subjects int) Caches {
	t.Helper()
	source := rand.New(rand.NewSource(seed))
	reducer := connectivity.NewReducer()

	rest, err := testkit.SyntheticConnCache(source, subjects, 8, 60, 0.3, reducer.ParcelMatrix)
	if err != nil {
		t.Fatalf("rest cache: %v", err)
	}
	task, err := testkit.SyntheticConnCache(source, subjects, 8, 60, 0.3, reducer.ParcelMatrix)
	if err != nil {
		t.Fatalf("task cache: %v", err)
	}
	return Caches{
		Rest: rest,
		Conditions: []TaskConditionCache{
			{Task: "WM", Condition: "2bk_faces", Cache: task},
		},
	}
}

func testPartition(t *testing.T) *connectome.NetworkPartition {
	t.Helper()
	np, err := connectome.NewNetworkPartition(testkit.BlockPartition([]string{"A", "B"}, 4))
	if err != nil {
		t.Fatalf("NewNetworkPartition: %v", err)
	}
	return np
}

func TestDriver_SingleTrial(t *testing.T) {
	d := testDriver()
	caches := testCaches(t, 1, 12)
	cfg := RunConfig{
		Run:    core.NewRunID(),
		Trials: 1,
		Seed:   42,
		CCA:    cca.Config{Reg: 0.5, NumComponents: 1},
	}

	dist, err := d.Run(context.Background(), cfg, caches, testPartition(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(dist.Rows) != 1 || dist.Completed != 1 {
		t.Fatalf("expected 1 completed row, got %d rows / %d completed", len(dist.Rows), dist.Completed)
	}
	row := dist.Rows[0]
	if len(row) != 1 {
		t.Fatalf("expected 1 squared correlation per row, got %d", len(row))
	}
	if row[0] < 0 || row[0] > 1 {
		t.Errorf("squared canonical correlation %g outside [0,1]", row[0])
	}
}

func TestDriver_DeterministicAcrossWorkerCounts(t *testing.T) {
	caches := testCaches(t, 2, 12)
	base := testPartition(t)
	cfg := RunConfig{
		Run:    core.NewRunID(),
		Trials: 8,
		Seed:   7,
		CCA:    cca.Config{Reg: 0.5, NumComponents: 1},
	}

	cfg.Workers = 1
	serial, err := testDriver().Run(context.Background(), cfg, caches, base)
	if err != nil {
		t.Fatalf("serial Run: %v", err)
	}
	cfg.Workers = 4
	parallel, err := testDriver().Run(context.Background(), cfg, caches, base)
	if err != nil {
		t.Fatalf("parallel Run: %v", err)
	}

	for i := range serial.Rows {
		for j := range serial.Rows[i] {
			if serial.Rows[i][j] != parallel.Rows[i][j] {
				t.Fatalf("trial %d differs between worker counts: %g vs %g",
					i, serial.Rows[i][j], parallel.Rows[i][j])
			}
		}
	}
}

func TestDriver_RowCountMatchesTrials(t *testing.T) {
	d := testDriver()
	caches := testCaches(t, 3, 10)
	cfg := RunConfig{
		Run:     core.NewRunID(),
		Trials:  5,
		Workers: 2,
		Seed:    11,
		CCA:     cca.Config{Reg: 0.5, NumComponents: 1},
	}

	dist, err := d.Run(context.Background(), cfg, caches, testPartition(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(dist.Rows) != 5 || dist.Completed != 5 {
		t.Fatalf("expected 5 rows completed, got %d/%d", dist.Completed, len(dist.Rows))
	}
	for i, row := range dist.Rows {
		if row == nil {
			t.Fatalf("trial %d left no row", i)
		}
	}
}

// identicalSubjectCaches builds caches where every subject has the same
// connectivity matrix, so block-mean features have zero variance across
// subjects and every trial fails recoverably.
func identicalSubjectCaches(t *testing.T, subjects int) Caches {
	t.Helper()
	reducer := connectivity.NewReducer()

	series := mat.NewDense(8, 30, nil)
	for p := 0; p < 8; p++ {
		for tp := 0; tp < 30; tp++ {
			series.Set(p, tp, math.Sin(float64(tp)+float64(p)))
		}
	}
	frames := make([]int, 30)
	for i := range frames {
		frames[i] = i
	}
	cm, err := reducer.ParcelMatrix([]*mat.Dense{series}, [][]int{frames})
	if err != nil {
		t.Fatalf("ParcelMatrix: %v", err)
	}

	ids := make([]core.SubjectID, subjects)
	matrices := make([]*connectome.ConnMatrix, subjects)
	for i := range ids {
		ids[i] = core.SubjectID(string(rune('a' + i)))
		matrices[i] = cm
	}
	cache, err := connectome.NewConnCache(ids, matrices)
	if err != nil {
		t.Fatalf("NewConnCache: %v", err)
	}
	return Caches{
		Rest:       cache,
		Conditions: []TaskConditionCache{{Task: "WM", Condition: "0bk_body", Cache: cache}},
	}
}

func TestDriver_RecoverableFailuresYieldNaNRows(t *testing.T) {
	d := testDriver()
	caches := identicalSubjectCaches(t, 6)
	cfg := RunConfig{
		Run:    core.NewRunID(),
		Trials: 3,
		Seed:   5,
		CCA:    cca.Config{Reg: 0.5, NumComponents: 2},
	}

	dist, err := d.Run(context.Background(), cfg, caches, testPartition(t))
	if err != nil {
		t.Fatalf("Run should survive recoverable trial failures, got %v", err)
	}
	if dist.Completed != 3 {
		t.Fatalf("expected all 3 trials accounted for, got %d", dist.Completed)
	}
	for i, row := range dist.Rows {
		if len(row) != 2 {
			t.Fatalf("trial %d: NaN row must keep the component count, got %d", i, len(row))
		}
		for _, v := range row {
			if !math.IsNaN(v) {
				t.Fatalf("trial %d: expected NaN substitution, got %g", i, v)
			}
		}
	}
}

func TestDriver_CancelledContextReturnsPartial(t *testing.T) {
	d := testDriver()
	caches := testCaches(t, 4, 10)
	cfg := RunConfig{
		Run:     core.NewRunID(),
		Trials:  50,
		Workers: 2,
		Seed:    9,
		CCA:     cca.Config{Reg: 0.5, NumComponents: 1},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dist, err := d.Run(ctx, cfg, caches, testPartition(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if dist == nil {
		t.Fatal("cancelled run must still return the partial distribution")
	}
	if dist.Completed > cfg.Trials {
		t.Fatalf("completed count %d exceeds trial count", dist.Completed)
	}
}

func TestDriver_CheckpointInvoked(t *testing.T) {
	d := testDriver()
	caches := testCaches(t, 6, 10)

	var calls int
	cfg := RunConfig{
		Run:             core.NewRunID(),
		Trials:          4,
		Seed:            3,
		CCA:             cca.Config{Reg: 0.5, NumComponents: 1},
		CheckpointEvery: 2,
		Checkpoint: func(rows [][]float64, completed int) {
			calls++
			if completed%2 != 0 {
				t.Errorf("checkpoint at unexpected count %d", completed)
			}
			if len(rows) != 4 {
				t.Errorf("checkpoint snapshot has %d rows, expected 4", len(rows))
			}
		},
	}

	if _, err := d.Run(context.Background(), cfg, caches, testPartition(t)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 checkpoints for 4 trials every 2, got %d", calls)
	}
}

func TestDriver_RejectsZeroTrials(t *testing.T) {
	d := testDriver()
	caches := testCaches(t, 8, 6)
	cfg := RunConfig{Run: core.NewRunID(), CCA: cca.Config{Reg: 0.5, NumComponents: 1}}
	if _, err := d.Run(context.Background(), cfg, caches, testPartition(t)); err == nil {
		t.Fatal("expected error for zero trials")
	}
}
