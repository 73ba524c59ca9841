package connectome

import (
	"neurocca/domain/core"
)

// ConnCache holds per-subject parcel-level connectivity matrices in a fixed
// subject order. Caches are built once in the pre-pass and shared read-only
// across all permutation trials; only the network grouping applied to them
// changes per trial.
type ConnCache struct {
	subjects []core.SubjectID
	matrices []*ConnMatrix
}

// NewConnCache pairs subjects with their cached matrices.
func NewConnCache(subjects []core.SubjectID, matrices []*ConnMatrix) (*ConnCache, error) {
	if len(subjects) != len(matrices) {
		return nil, core.NewShapeMismatchError(len(subjects), len(matrices), "cached matrices")
	}
	return &ConnCache{subjects: subjects, matrices: matrices}, nil
}

// Len returns the subject count.
func (c *ConnCache) Len() int {
	return len(c.subjects)
}

// Subjects returns the fixed subject ordering.
func (c *ConnCache) Subjects() []core.SubjectID {
	out := make([]core.SubjectID, len(c.subjects))
	copy(out, c.subjects)
	return out
}

// Matrix returns the cached matrix for subject row i.
func (c *ConnCache) Matrix(i int) *ConnMatrix {
	return c.matrices[i]
}
