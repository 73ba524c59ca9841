package hcp

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultParcels is the HCP multi-modal parcellation size.
const DefaultParcels = 360

// AtlasReader loads the fixed parcel->network label array from a text file
// with one network label per line, in parcel order.
type AtlasReader struct {
	path          string
	expectParcels int
}

// NewAtlasReader creates a reader for the given label file. expectParcels
// of 0 disables the count check (used by fixtures with smaller atlases).
func NewAtlasReader(path string, expectParcels int) *AtlasReader {
	return &AtlasReader{path: path, expectParcels: expectParcels}
}

// NetworkLabels reads the per-parcel network labels.
func (r *AtlasReader) NetworkLabels(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("opening atlas file: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if r.expectParcels > 0 && len(labels) != r.expectParcels {
		return nil, fmt.Errorf("atlas file %s has %d labels, expected %d", r.path, len(labels), r.expectParcels)
	}
	return labels, nil
}
