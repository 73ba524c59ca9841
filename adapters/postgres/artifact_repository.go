package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"neurocca/domain/connectome"
	"neurocca/domain/core"
	"neurocca/ports"
)

// ArtifactRepository persists run artifacts as gob blobs in postgres for
// multi-machine batch setups. Same payload encoding as the file store, so
// round-trips stay bit-exact.
type ArtifactRepository struct {
	db *sqlx.DB
}

// NewArtifactRepository creates a postgres-backed artifact store.
func NewArtifactRepository(db *sqlx.DB) ports.ArtifactStorePort {
	return &ArtifactRepository{db: db}
}

// Open connects to postgres and ensures the artifact table exists.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS run_artifacts (
			run_id     TEXT NOT NULL,
			kind       TEXT NOT NULL,
			payload    BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (run_id, kind)
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating run_artifacts table: %w", err)
	}
	return db, nil
}

const (
	kindFeatureSummary   = "feature_summary"
	kindNullDistribution = "null_distribution"
)

// SaveFeatureSummary upserts the network-level connectivity summary.
func (r *ArtifactRepository) SaveFeatureSummary(ctx context.Context, summary *connectome.FeatureSummary) error {
	return r.save(ctx, summary.Run, kindFeatureSummary, summary)
}

// LoadFeatureSummary fetches a summary by run ID.
func (r *ArtifactRepository) LoadFeatureSummary(ctx context.Context, run core.RunID) (*connectome.FeatureSummary, error) {
	var summary connectome.FeatureSummary
	if err := r.load(ctx, run, kindFeatureSummary, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// SaveNullDistribution upserts the permutation-test output.
func (r *ArtifactRepository) SaveNullDistribution(ctx context.Context, dist *connectome.NullDistribution) error {
	return r.save(ctx, dist.Run, kindNullDistribution, dist)
}

// LoadNullDistribution fetches a null distribution by run ID.
func (r *ArtifactRepository) LoadNullDistribution(ctx context.Context, run core.RunID) (*connectome.NullDistribution, error) {
	var dist connectome.NullDistribution
	if err := r.load(ctx, run, kindNullDistribution, &dist); err != nil {
		return nil, err
	}
	return &dist, nil
}

func (r *ArtifactRepository) save(ctx context.Context, run core.RunID, kind string, value interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return fmt.Errorf("encoding %s artifact: %w", kind, err)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO run_artifacts (run_id, kind, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, kind) DO UPDATE SET
			payload = EXCLUDED.payload,
			created_at = NOW()`,
		run.String(), kind, buf.Bytes())
	return err
}

func (r *ArtifactRepository) load(ctx context.Context, run core.RunID, kind string, value interface{}) error {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM run_artifacts WHERE run_id = $1 AND kind = $2`,
		run.String(), kind).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w (run %s, kind %s)", core.ErrArtifactNotFound, run, kind)
	}
	if err != nil {
		return err
	}
	return gob.NewDecoder(bytes.NewReader(payload)).Decode(value)
}
