package artifacts

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"neurocca/domain/connectome"
	"neurocca/domain/core"
)

// GobStore persists the feature summary and null distribution artifacts as
// gob files under a directory, keyed by run ID. Gob round-trips float64
// payloads bit-exactly, which the artifact contract requires.
type GobStore struct {
	dir string
}

// NewGobStore creates a store rooted at dir, creating it if needed.
func NewGobStore(dir string) (*GobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &GobStore{dir: dir}, nil
}

// SaveFeatureSummary writes the network-level connectivity summary.
func (s *GobStore) SaveFeatureSummary(ctx context.Context, summary *connectome.FeatureSummary) error {
	return s.save(ctx, s.featurePath(summary.Run), summary)
}

// LoadFeatureSummary reads a previously saved summary.
func (s *GobStore) LoadFeatureSummary(ctx context.Context, run core.RunID) (*connectome.FeatureSummary, error) {
	var summary connectome.FeatureSummary
	if err := s.load(ctx, s.featurePath(run), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// SaveNullDistribution writes the permutation-test output.
func (s *GobStore) SaveNullDistribution(ctx context.Context, dist *connectome.NullDistribution) error {
	return s.save(ctx, s.nullPath(dist.Run), dist)
}

// LoadNullDistribution reads a previously saved null distribution.
func (s *GobStore) LoadNullDistribution(ctx context.Context, run core.RunID) (*connectome.NullDistribution, error) {
	var dist connectome.NullDistribution
	if err := s.load(ctx, s.nullPath(run), &dist); err != nil {
		return nil, err
	}
	return &dist, nil
}

func (s *GobStore) featurePath(run core.RunID) string {
	return filepath.Join(s.dir, run.String()+"_features.gob")
}

func (s *GobStore) nullPath(run core.RunID) string {
	return filepath.Join(s.dir, run.String()+"_nulldist.gob")
}

// save encodes to a temp file and renames, so a cancelled run never leaves
// a truncated artifact behind.
func (s *GobStore) save(ctx context.Context, path string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".artifact-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(value); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding artifact %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *GobStore) load(ctx context.Context, path string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w (%s)", core.ErrArtifactNotFound, path)
		}
		return err
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(value); err != nil {
		return fmt.Errorf("decoding artifact %s: %w", path, err)
	}
	return nil
}
