package ports

import (
	"context"

	"neurocca/domain/connectome"
	"neurocca/domain/core"
)

// TimeseriesPort supplies per-subject, per-run parcellated time series for a
// named experiment, mean-removed per parcel. Implementations return
// core.ErrNotFound (wrapped) when no run matches the experiment name.
type TimeseriesPort interface {
	Load(ctx context.Context, subject core.SubjectID, experiment string, runs []string) ([]*connectome.Timeseries, error)
}
