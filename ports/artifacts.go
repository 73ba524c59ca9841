package ports

import (
	"context"

	"neurocca/domain/connectome"
	"neurocca/domain/core"
)

// ArtifactStorePort persists the two core output artifacts: the
// network-level connectivity feature summary and the permutation-test null
// distribution. Implementations must round-trip both losslessly
// (bit-identical float payloads on reload).
type ArtifactStorePort interface {
	SaveFeatureSummary(ctx context.Context, summary *connectome.FeatureSummary) error
	LoadFeatureSummary(ctx context.Context, run core.RunID) (*connectome.FeatureSummary, error)

	SaveNullDistribution(ctx context.Context, dist *connectome.NullDistribution) error
	LoadNullDistribution(ctx context.Context, run core.RunID) (*connectome.NullDistribution, error)
}
