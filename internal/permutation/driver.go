package permutation

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"neurocca/adapters/stats/connectivity"
	"neurocca/domain/cca"
	"neurocca/domain/connectome"
	"neurocca/domain/core"
	"neurocca/internal"
	"neurocca/internal/cancorr"
	"neurocca/ports"
)

// RunConfig parameterizes one permutation-test run. The CCA configuration
// is fixed (not cross-validated) inside the hot loop for speed.
type RunConfig struct {
	Run           core.RunID
	Trials        int
	Workers       int
	Seed          int64
	CCA           cca.Config
	ProgressEvery int
	// Checkpoint, when set, receives a snapshot of the partial rows every
	// CheckpointEvery completed trials. Recommended for long batch runs.
	CheckpointEvery int
	Checkpoint      func(rows [][]float64, completed int)
}

// TaskConditionCache pairs a task condition with its cached per-subject
// parcel matrices. Kept as an ordered slice so the column-wise feature
// concatenation is deterministic across runs.
type TaskConditionCache struct {
	Task      core.TaskName
	Condition core.ConditionName
	Cache     *connectome.ConnCache
}

// Caches is the immutable input of a permutation run: rest and per-condition
// parcel-level matrices, built once in the pre-pass. Trials only read.
type Caches struct {
	Rest       *connectome.ConnCache
	Conditions []TaskConditionCache
}

// Driver orchestrates permutation trials: per trial it draws a permuted
// partition, rebuilds rest and task network features from the cached
// parcel matrices, fits the fixed-config CCA, and records the squared
// canonical correlations at the trial's index.
//
// Failure policy (fixed, tested): a trial whose CCA fit fails numerically
// substitutes a NaN vector at its index and the run continues; the output
// therefore always has exactly Trials rows with aligned indices. Errors
// that are not per-trial numerical failures abort the run.
type Driver struct {
	reducer *connectivity.Reducer
	engine  *cancorr.Engine
	rng     ports.RNGPort
	logger  *internal.Logger
}

// NewDriver creates a permutation test driver.
func NewDriver(reducer *connectivity.Reducer, engine *cancorr.Engine, rng ports.RNGPort, logger *internal.Logger) *Driver {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Driver{reducer: reducer, engine: engine, rng: rng, logger: logger}
}

// Run executes cfg.Trials permutation trials over a worker pool and returns
// the null distribution. On context cancellation the completed rows are
// returned as a partial distribution (unattempted trials have nil rows)
// together with the context's error.
func (d *Driver) Run(ctx context.Context, cfg RunConfig, caches Caches, base *connectome.NetworkPartition) (*connectome.NullDistribution, error) {
	if cfg.Trials < 1 {
		return nil, core.NewShapeMismatchError(1, cfg.Trials, "trials (minimum)")
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	progressEvery := cfg.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = 100
	}

	rows := make([][]float64, cfg.Trials)
	var mu sync.Mutex
	var completed atomic.Int64
	var failed atomic.Int64

	trials := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(trials)
		for t := 0; t < cfg.Trials; t++ {
			select {
			case trials <- t:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for trial := range trials {
				select {
				case <-gctx.Done():
					return nil
				default:
				}

				row, err := d.runTrial(gctx, cfg, caches, base, trial)
				if err != nil {
					if core.IsTrialRecoverable(err) {
						d.logger.Warn("substituting NaN row: %v", core.NewTrialError(trial, err))
						row = nanRow(cfg.CCA.NumComponents)
						failed.Add(1)
					} else {
						return core.NewTrialError(trial, err)
					}
				}

				mu.Lock()
				rows[trial] = row
				mu.Unlock()

				done := completed.Add(1)
				if done%int64(progressEvery) == 0 {
					d.logger.Info("permutation progress: %d/%d trials completed", done, cfg.Trials)
				}
				if cfg.Checkpoint != nil && cfg.CheckpointEvery > 0 && done%int64(cfg.CheckpointEvery) == 0 {
					mu.Lock()
					snapshot := snapshotRows(rows)
					mu.Unlock()
					cfg.Checkpoint(snapshot, int(done))
				}
			}
			return nil
		})
	}

	runErr := g.Wait()

	dist := &connectome.NullDistribution{
		Run:           cfg.Run,
		Seed:          cfg.Seed,
		Reg:           cfg.CCA.Reg,
		NumComponents: cfg.CCA.NumComponents,
		Trials:        cfg.Trials,
		Completed:     int(completed.Load()),
		Rows:          rows,
		CreatedAt:     core.Now(),
	}

	if runErr != nil {
		return dist, runErr
	}
	if err := ctx.Err(); err != nil {
		d.logger.Warn("permutation run cancelled after %d/%d trials", dist.Completed, cfg.Trials)
		return dist, err
	}
	if n := failed.Load(); n > 0 {
		d.logger.Warn("permutation run finished with %d/%d NaN-substituted trials", n, cfg.Trials)
	}
	return dist, nil
}

// runTrial computes one null-distribution row.
func (d *Driver) runTrial(ctx context.Context, cfg RunConfig, caches Caches, base *connectome.NetworkPartition, trial int) ([]float64, error) {
	rng, err := d.rng.TrialStream(ctx, cfg.Seed, trial)
	if err != nil {
		return nil, err
	}
	permuted := base.Permuted(rng)

	restFM, err := d.reducer.FeatureMatrix(caches.Rest, permuted)
	if err != nil {
		return nil, err
	}

	taskFMs := make([]*connectome.FeatureMatrix, 0, len(caches.Conditions))
	for _, tc := range caches.Conditions {
		fm, err := d.reducer.FeatureMatrix(tc.Cache, permuted)
		if err != nil {
			return nil, err
		}
		taskFMs = append(taskFMs, fm)
	}
	taskFM, err := connectome.ConcatColumns(taskFMs...)
	if err != nil {
		return nil, err
	}

	// consistent standardization keeps trials comparable (the engine never
	// standardizes on its own)
	restX, err := cancorr.Standardize(restFM.Dense())
	if err != nil {
		return nil, err
	}
	taskY, err := cancorr.Standardize(taskFM.Dense())
	if err != nil {
		return nil, err
	}

	model, err := d.engine.Fit(restX, taskY, cfg.CCA)
	if err != nil {
		return nil, err
	}
	return model.CanCorrsSquared(), nil
}

func nanRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}

func snapshotRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		if r == nil {
			continue
		}
		cp := make([]float64, len(r))
		copy(cp, r)
		out[i] = cp
	}
	return out
}
