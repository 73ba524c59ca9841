package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"neurocca/adapters/artifacts"
	"neurocca/adapters/hcp"
	"neurocca/adapters/postgres"
	"neurocca/adapters/rng"
	"neurocca/app"
	"neurocca/domain/cca"
	"neurocca/domain/core"
	"neurocca/internal"
	"neurocca/internal/config"
	apperrors "neurocca/internal/errors"
	"neurocca/ports"
)

func main() {
	// .env is optional; environment variables win
	_ = godotenv.Load()

	trials := flag.Int("trials", 0, "permutation trial count (overrides TRIALS)")
	outputDir := flag.String("output", "", "artifact output directory (overrides OUTPUT_DIR)")
	regGrid := flag.String("reg-grid", "", "comma-separated regularization grid (overrides CCA_REG_GRID)")
	compGrid := flag.String("component-grid", "", "comma-separated component-count grid (overrides CCA_COMPONENT_GRID)")
	tasks := flag.String("tasks", "WM:2bk_faces,2bk_places", "task conditions as task:cond,cond;task:cond")
	flag.Parse()

	if *trials > 0 {
		os.Setenv("TRIALS", fmt.Sprint(*trials))
	}
	if *outputDir != "" {
		os.Setenv("OUTPUT_DIR", *outputDir)
	}
	if *regGrid != "" {
		os.Setenv("CCA_REG_GRID", *regGrid)
	}
	if *compGrid != "" {
		os.Setenv("CCA_COMPONENT_GRID", *compGrid)
	}

	logger := internal.NewDefaultLogger()
	if err := run(logger, *tasks); err != nil {
		logger.Error("[%s] %v", apperrors.GetCode(err), err)
		os.Exit(1)
	}
}

func run(logger *internal.Logger, taskArg string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subjects, err := readSubjects(cfg.Data.SubjectsFile)
	if err != nil {
		return apperrors.Wrap(err, "reading subjects file")
	}
	taskSpecs, err := parseTasks(taskArg)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	service := app.NewPipelineService(
		hcp.NewTimeseriesReader(cfg.Data.DataDir),
		hcp.NewEVReader(cfg.Data.DataDir, cfg.Data.TaskRuns),
		hcp.NewAtlasReader(cfg.Data.AtlasFile, cfg.Data.Parcels),
		rng.NewSeededAdapter(),
		store,
		logger,
	)

	runID := core.NewRunID()
	logger.Info("starting analysis run %s: %d subjects, %d trials", runID, len(subjects), cfg.Analysis.Trials)

	report, err := service.Run(ctx, app.PipelineConfig{
		Run:              runID,
		Subjects:         subjects,
		RestExperiment:   cfg.Data.RestExperiment,
		RestRuns:         cfg.Data.RestRuns,
		TaskRuns:         cfg.Data.TaskRuns,
		Tasks:            taskSpecs,
		SamplingInterval: cfg.Data.SamplingInterval,
		Skip:             cfg.Data.Skip,
		Trials:           cfg.Analysis.Trials,
		Workers:          cfg.Analysis.Workers,
		Seed:             cfg.Analysis.Seed,
		CCA: cca.Config{
			Reg:           cfg.Analysis.Reg,
			NumComponents: cfg.Analysis.NumComponents,
			Kernel:        cfg.Analysis.Kernel,
		},
		RegGrid:         cfg.Analysis.RegGrid,
		ComponentGrid:   cfg.Analysis.ComponentGrid,
		CVFolds:         cfg.Analysis.CVFolds,
		CheckpointEvery: cfg.Output.CheckpointEvery,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s finished\n", report.Run)
	fmt.Printf("  cohort: %d subjects\n", len(report.Cohort))
	fmt.Printf("  observed: reg=%g components=%d explained=%.4f\n",
		report.BestConfig.Reg, report.BestConfig.NumComponents, report.ObservedVariance)
	fmt.Printf("  null: %d samples (mean=%.4f, p95=%.4f)\n",
		report.NullSummary.Samples, report.NullSummary.Mean, report.NullSummary.Percentile95)
	fmt.Printf("  empirical p = %.4f\n", report.PValue)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *internal.Logger) (ports.ArtifactStorePort, error) {
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, apperrors.DatabaseError("opening postgres artifact store", err)
		}
		logger.Info("artifacts: postgres store")
		return postgres.NewArtifactRepository(db), nil
	}
	logger.Info("artifacts: file store at %s", cfg.Output.Dir)
	return artifacts.NewGobStore(cfg.Output.Dir)
}

func readSubjects(path string) ([]core.SubjectID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var subjects []core.SubjectID
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := core.ParseSubjectID(line)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, id)
	}
	return subjects, scanner.Err()
}

// parseTasks parses "WM:2bk_faces,2bk_places;MOTOR:lh,rh".
func parseTasks(arg string) ([]app.TaskSpec, error) {
	var specs []app.TaskSpec
	for _, part := range strings.Split(arg, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, conds, ok := strings.Cut(part, ":")
		if !ok {
			return nil, apperrors.ConfigInvalid(fmt.Sprintf("task spec %q must be task:cond[,cond...]", part))
		}
		spec := app.TaskSpec{Task: core.TaskName(strings.TrimSpace(name))}
		for _, c := range strings.Split(conds, ",") {
			if c = strings.TrimSpace(c); c != "" {
				spec.Conditions = append(spec.Conditions, core.ConditionName(c))
			}
		}
		if len(spec.Conditions) == 0 {
			return nil, apperrors.ConfigInvalid(fmt.Sprintf("task %q has no conditions", name))
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, apperrors.ConfigInvalid("no task conditions configured")
	}
	return specs, nil
}
