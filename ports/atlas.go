package ports

import "context"

// AtlasPort provides the fixed parcel->network label array in parcel order
// (360 entries for the HCP multi-modal parcellation).
type AtlasPort interface {
	NetworkLabels(ctx context.Context) ([]string, error)
}
