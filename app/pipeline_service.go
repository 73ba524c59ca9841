package app

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"neurocca/adapters/stats/connectivity"
	"neurocca/domain/cca"
	"neurocca/domain/connectome"
	"neurocca/domain/core"
	"neurocca/internal"
	"neurocca/internal/cancorr"
	"neurocca/internal/nulldist"
	"neurocca/internal/permutation"
	"neurocca/ports"
)

// TaskSpec names one task and the conditions whose connectivity enters the
// task feature space.
type TaskSpec struct {
	Task       core.TaskName
	Conditions []core.ConditionName
}

// PipelineConfig parameterizes a full analysis run.
type PipelineConfig struct {
	Run              core.RunID
	Subjects         []core.SubjectID
	RestExperiment   string
	RestRuns         []string
	TaskRuns         []string
	Tasks            []TaskSpec
	SamplingInterval float64
	Skip             int

	Trials          int
	Workers         int
	Seed            int64
	CCA             cca.Config
	RegGrid         []float64
	ComponentGrid   []int
	CVFolds         int
	CheckpointEvery int
}

// Report is the outcome of one analysis run: the observed CCA against the
// permutation null.
type Report struct {
	Run                core.RunID
	Cohort             []core.SubjectID
	BestConfig         cca.Config
	ObservedCanCorrsSq []float64
	ObservedVariance   float64
	Null               *connectome.NullDistribution
	NullSummary        *nulldist.Summary
	PValue             float64
}

// PipelineService orchestrates the analysis: a pre-pass building per-subject
// parcel-level connectivity caches, the observed network-feature summary and
// CCA fit, and the permutation test against cached matrices.
type PipelineService struct {
	timeseries ports.TimeseriesPort
	events     ports.EventPort
	atlas      ports.AtlasPort
	rng        ports.RNGPort
	store      ports.ArtifactStorePort
	reducer    *connectivity.Reducer
	engine     *cancorr.Engine
	driver     *permutation.Driver
	logger     *internal.Logger
}

// NewPipelineService wires the pipeline from its collaborators.
func NewPipelineService(
	timeseries ports.TimeseriesPort,
	events ports.EventPort,
	atlas ports.AtlasPort,
	rngPort ports.RNGPort,
	store ports.ArtifactStorePort,
	logger *internal.Logger,
) *PipelineService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	reducer := connectivity.NewReducer()
	engine := cancorr.NewEngine()
	return &PipelineService{
		timeseries: timeseries,
		events:     events,
		atlas:      atlas,
		rng:        rngPort,
		store:      store,
		reducer:    reducer,
		engine:     engine,
		driver:     permutation.NewDriver(reducer, engine, rngPort, logger),
		logger:     logger,
	}
}

// Run executes the full pipeline and persists both artifacts.
func (s *PipelineService) Run(ctx context.Context, cfg PipelineConfig) (*Report, error) {
	partition, err := s.LoadPartition(ctx)
	if err != nil {
		return nil, err
	}

	restCache, cohort, err := s.BuildRestCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Info("rest cache built: %d subjects", len(cohort))

	taskCaches, err := s.BuildTaskCaches(ctx, cfg, cohort)
	if err != nil {
		return nil, err
	}

	summary, err := s.ObservedFeatures(ctx, cfg, restCache, taskCaches, partition)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveFeatureSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("saving feature summary: %w", err)
	}

	bestCfg, observed, err := s.ObservedModel(cfg, summary)
	if err != nil {
		return nil, err
	}
	s.logger.Info("observed CCA: reg=%g components=%d explained=%.4f",
		bestCfg.Reg, bestCfg.NumComponents, observed.ExplainedVariance())

	dist, err := s.RunPermutationTest(ctx, cfg, restCache, taskCaches, partition, bestCfg)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveNullDistribution(ctx, dist); err != nil {
		return nil, fmt.Errorf("saving null distribution: %w", err)
	}

	nullSummary, err := nulldist.Summarize(dist)
	if err != nil {
		return nil, err
	}
	p := nulldist.EmpiricalPValue(observed.ExplainedVariance(), dist)
	s.logger.Info("permutation test: %d samples, null mean=%.4f p95=%.4f, observed p=%.4f",
		nullSummary.Samples, nullSummary.Mean, nullSummary.Percentile95, p)

	return &Report{
		Run:                cfg.Run,
		Cohort:             cohort,
		BestConfig:         bestCfg,
		ObservedCanCorrsSq: observed.CanCorrsSquared(),
		ObservedVariance:   observed.ExplainedVariance(),
		Null:               dist,
		NullSummary:        nullSummary,
		PValue:             p,
	}, nil
}

// LoadPartition builds the observed network partition from the atlas.
func (s *PipelineService) LoadPartition(ctx context.Context) (*connectome.NetworkPartition, error) {
	labels, err := s.atlas.NetworkLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading atlas labels: %w", err)
	}
	return connectome.NewNetworkPartition(labels)
}

// BuildRestCache computes per-subject rest connectivity over all frames of
// every rest run. Subjects whose rest data is missing are dropped from the
// cohort with a warning; all later stages use the surviving cohort.
func (s *PipelineService) BuildRestCache(ctx context.Context, cfg PipelineConfig) (*connectome.ConnCache, []core.SubjectID, error) {
	var cohort []core.SubjectID
	var matrices []*connectome.ConnMatrix
	for _, subject := range cfg.Subjects {
		series, err := s.timeseries.Load(ctx, subject, cfg.RestExperiment, cfg.RestRuns)
		if err != nil {
			if core.IsNotFoundError(err) {
				s.logger.Warn("dropping subject from cohort: %v", err)
				continue
			}
			return nil, nil, err
		}
		cm, err := s.parcelMatrixAllFrames(series)
		if err != nil {
			return nil, nil, core.NewSubjectError(subject, core.TaskName(cfg.RestExperiment), "", err)
		}
		cohort = append(cohort, subject)
		matrices = append(matrices, cm)
	}
	if len(cohort) == 0 {
		return nil, nil, fmt.Errorf("%w: no subject has rest data for %s", core.ErrNotFound, cfg.RestExperiment)
	}
	cache, err := connectome.NewConnCache(cohort, matrices)
	if err != nil {
		return nil, nil, err
	}
	return cache, cohort, nil
}

// BuildTaskCaches computes per-subject condition connectivity from event
// windows, for every task condition, over the rest cohort. Missing task or
// condition data for a cohort subject is an error: the condition cannot be
// analyzed on a misaligned cohort.
func (s *PipelineService) BuildTaskCaches(ctx context.Context, cfg PipelineConfig, cohort []core.SubjectID) ([]permutation.TaskConditionCache, error) {
	var caches []permutation.TaskConditionCache
	for _, spec := range cfg.Tasks {
		experiment := taskExperiment(spec.Task)
		for _, condition := range spec.Conditions {
			matrices := make([]*connectome.ConnMatrix, 0, len(cohort))
			for _, subject := range cohort {
				cm, err := s.conditionMatrix(ctx, cfg, subject, spec.Task, experiment, condition)
				if err != nil {
					return nil, err
				}
				matrices = append(matrices, cm)
			}
			cache, err := connectome.NewConnCache(cohort, matrices)
			if err != nil {
				return nil, err
			}
			caches = append(caches, permutation.TaskConditionCache{
				Task:      spec.Task,
				Condition: condition,
				Cache:     cache,
			})
			s.logger.Info("task cache built: %s/%s (%d subjects)", spec.Task, condition, len(cohort))
		}
	}
	if len(caches) == 0 {
		return nil, fmt.Errorf("no task conditions configured")
	}
	return caches, nil
}

func (s *PipelineService) conditionMatrix(ctx context.Context, cfg PipelineConfig, subject core.SubjectID, task core.TaskName, experiment string, condition core.ConditionName) (*connectome.ConnMatrix, error) {
	series, err := s.timeseries.Load(ctx, subject, experiment, cfg.TaskRuns)
	if err != nil {
		return nil, err
	}
	events, err := s.events.LoadEvents(ctx, subject, task, condition)
	if err != nil {
		return nil, err
	}
	timepoints := make([]int, len(series))
	for i, ts := range series {
		timepoints[i] = ts.Timepoints()
	}
	windows, err := connectome.FramesToWindows(events, cfg.SamplingInterval, cfg.Skip, timepoints)
	if err != nil {
		return nil, core.NewSubjectError(subject, task, condition, err)
	}
	cm, err := s.reducer.ParcelMatrix(seriesData(series), windows)
	if err != nil {
		return nil, core.NewSubjectError(subject, task, condition, err)
	}
	return cm, nil
}

// ObservedFeatures reduces the caches to network features under the real
// (unshuffled) partition.
func (s *PipelineService) ObservedFeatures(_ context.Context, cfg PipelineConfig, restCache *connectome.ConnCache, taskCaches []permutation.TaskConditionCache, partition *connectome.NetworkPartition) (*connectome.FeatureSummary, error) {
	restFM, err := s.reducer.FeatureMatrix(restCache, partition)
	if err != nil {
		return nil, err
	}
	tasks := make(map[core.TaskName]map[core.ConditionName]*connectome.FeatureMatrix)
	for _, tc := range taskCaches {
		fm, err := s.reducer.FeatureMatrix(tc.Cache, partition)
		if err != nil {
			return nil, err
		}
		if tasks[tc.Task] == nil {
			tasks[tc.Task] = make(map[core.ConditionName]*connectome.FeatureMatrix)
		}
		tasks[tc.Task][tc.Condition] = fm
	}
	return &connectome.FeatureSummary{
		Run:       cfg.Run,
		CreatedAt: core.Now(),
		Rest:      restFM,
		Tasks:     tasks,
	}, nil
}

// ObservedModel fits the observed CCA, cross-validating hyperparameters
// when grids are configured, otherwise using the fixed configuration.
func (s *PipelineService) ObservedModel(cfg PipelineConfig, summary *connectome.FeatureSummary) (cca.Config, *cca.Model, error) {
	taskFMs := make([]*connectome.FeatureMatrix, 0)
	for _, spec := range cfg.Tasks {
		for _, condition := range spec.Conditions {
			fm, err := summary.Condition(spec.Task, condition)
			if err != nil {
				return cca.Config{}, nil, err
			}
			taskFMs = append(taskFMs, fm)
		}
	}
	taskFM, err := connectome.ConcatColumns(taskFMs...)
	if err != nil {
		return cca.Config{}, nil, err
	}

	restX, err := cancorr.Standardize(summary.Rest.Dense())
	if err != nil {
		return cca.Config{}, nil, err
	}
	taskY, err := cancorr.Standardize(taskFM.Dense())
	if err != nil {
		return cca.Config{}, nil, err
	}

	if len(cfg.RegGrid) > 0 && len(cfg.ComponentGrid) > 0 {
		result, err := s.engine.FitCV(restX, taskY, cfg.RegGrid, cfg.ComponentGrid, cfg.CVFolds, cfg.Seed, cfg.CCA.Kernel)
		if err != nil {
			return cca.Config{}, nil, err
		}
		return result.Best, result.Model, nil
	}

	model, err := s.engine.Fit(restX, taskY, cfg.CCA)
	if err != nil {
		return cca.Config{}, nil, err
	}
	return cfg.CCA, model, nil
}

// RunPermutationTest drives the null-distribution accumulation with the
// fixed best configuration.
func (s *PipelineService) RunPermutationTest(ctx context.Context, cfg PipelineConfig, restCache *connectome.ConnCache, taskCaches []permutation.TaskConditionCache, partition *connectome.NetworkPartition, fitCfg cca.Config) (*connectome.NullDistribution, error) {
	runCfg := permutation.RunConfig{
		Run:             cfg.Run,
		Trials:          cfg.Trials,
		Workers:         cfg.Workers,
		Seed:            cfg.Seed,
		CCA:             fitCfg,
		CheckpointEvery: cfg.CheckpointEvery,
	}
	if cfg.CheckpointEvery > 0 {
		runCfg.Checkpoint = func(rows [][]float64, completed int) {
			partial := &connectome.NullDistribution{
				Run:           cfg.Run,
				Seed:          cfg.Seed,
				Reg:           fitCfg.Reg,
				NumComponents: fitCfg.NumComponents,
				Trials:        cfg.Trials,
				Completed:     completed,
				Rows:          rows,
				CreatedAt:     core.Now(),
			}
			if err := s.store.SaveNullDistribution(ctx, partial); err != nil {
				s.logger.Warn("checkpoint save failed at %d trials: %v", completed, err)
			}
		}
	}
	return s.driver.Run(ctx, runCfg, permutation.Caches{Rest: restCache, Conditions: taskCaches}, partition)
}

func (s *PipelineService) parcelMatrixAllFrames(series []*connectome.Timeseries) (*connectome.ConnMatrix, error) {
	windows := make([][]int, len(series))
	for i, ts := range series {
		frames := make([]int, ts.Timepoints())
		for f := range frames {
			frames[f] = f
		}
		windows[i] = frames
	}
	return s.reducer.ParcelMatrix(seriesData(series), windows)
}

func seriesData(series []*connectome.Timeseries) []*mat.Dense {
	out := make([]*mat.Dense, len(series))
	for i, ts := range series {
		out[i] = ts.Data
	}
	return out
}

func taskExperiment(task core.TaskName) string {
	return "tfMRI_" + task.String()
}
