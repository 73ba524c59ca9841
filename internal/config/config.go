package config

import (
	"os"
	"strconv"
	"strings"

	"neurocca/internal/errors"
)

// Config represents the complete pipeline configuration
type Config struct {
	Data     DataConfig
	Analysis AnalysisConfig
	Output   OutputConfig
	Database DatabaseConfig
}

// DataConfig holds input data settings
type DataConfig struct {
	DataDir          string
	AtlasFile        string
	SubjectsFile     string
	RestExperiment   string
	RestRuns         []string
	TaskRuns         []string
	SamplingInterval float64 // TR in seconds
	Skip             int     // hemodynamic lag offset in frames
	Parcels          int
}

// AnalysisConfig holds permutation-test and CCA settings
type AnalysisConfig struct {
	Trials        int
	Workers       int
	Seed          int64
	Reg           float64
	NumComponents int
	Kernel        bool
	RegGrid       []float64
	ComponentGrid []int
	CVFolds       int
}

// OutputConfig holds artifact output settings
type OutputConfig struct {
	Dir             string
	CheckpointEvery int
}

// DatabaseConfig holds optional postgres artifact storage settings
type DatabaseConfig struct {
	URL string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Data: DataConfig{
			DataDir:          envString("DATA_DIR", "data"),
			AtlasFile:        envString("ATLAS_FILE", "data/atlas_labels.txt"),
			SubjectsFile:     envString("SUBJECTS_FILE", "data/subjects.txt"),
			RestExperiment:   envString("REST_EXPERIMENT", "rfMRI_REST1"),
			RestRuns:         envList("REST_RUNS", []string{"LR", "RL"}),
			TaskRuns:         envList("TASK_RUNS", []string{"LR", "RL"}),
			SamplingInterval: envFloat("SAMPLING_INTERVAL", 0.72),
			Skip:             envInt("SKIP_FRAMES", 3),
			Parcels:          envInt("PARCELS", 360),
		},
		Analysis: AnalysisConfig{
			Trials:        envInt("TRIALS", 1000),
			Workers:       envInt("WORKERS", 4),
			Seed:          int64(envInt("SEED", 42)),
			Reg:           envFloat("CCA_REG", 0.1),
			NumComponents: envInt("CCA_COMPONENTS", 3),
			Kernel:        envBool("CCA_KERNEL", false),
			RegGrid:       envFloatList("CCA_REG_GRID", []float64{0.01, 0.1, 1, 10}),
			ComponentGrid: envIntList("CCA_COMPONENT_GRID", []int{1, 2, 3, 4, 5}),
			CVFolds:       envInt("CCA_CV_FOLDS", 5),
		},
		Output: OutputConfig{
			Dir:             envString("OUTPUT_DIR", "out"),
			CheckpointEvery: envInt("CHECKPOINT_EVERY", 0),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
	}

	if cfg.Data.SamplingInterval <= 0 {
		return nil, errors.ConfigInvalid("SAMPLING_INTERVAL must be positive")
	}
	if cfg.Analysis.Trials < 1 {
		return nil, errors.ConfigInvalid("TRIALS must be at least 1")
	}
	if cfg.Analysis.NumComponents < 1 {
		return nil, errors.ConfigInvalid("CCA_COMPONENTS must be at least 1")
	}
	if cfg.Analysis.Reg < 0 {
		return nil, errors.ConfigInvalid("CCA_REG must be non-negative")
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

func envFloatList(key string, fallback []float64) []float64 {
	values := envList(key, nil)
	if values == nil {
		return fallback
	}
	out := make([]float64, 0, len(values))
	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fallback
		}
		out = append(out, f)
	}
	return out
}

func envIntList(key string, fallback []int) []int {
	values := envList(key, nil)
	if values == nil {
		return fallback
	}
	out := make([]int, 0, len(values))
	for _, v := range values {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fallback
		}
		out = append(out, n)
	}
	return out
}
