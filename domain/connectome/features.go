package connectome

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"neurocca/domain/core"
)

// FeatureMatrix is a subjects x network-pair-features matrix. Data is
// row-major and kept as a plain slice so the persisted artifacts gob-encode
// without loss.
type FeatureMatrix struct {
	Subjects []core.SubjectID
	Pairs    []LabelPair
	Data     []float64
}

// NewFeatureMatrix allocates a zeroed feature matrix.
func NewFeatureMatrix(subjects []core.SubjectID, pairs []LabelPair) *FeatureMatrix {
	return &FeatureMatrix{
		Subjects: subjects,
		Pairs:    pairs,
		Data:     make([]float64, len(subjects)*len(pairs)),
	}
}

// Rows returns the subject count.
func (f *FeatureMatrix) Rows() int { return len(f.Subjects) }

// Cols returns the feature count.
func (f *FeatureMatrix) Cols() int { return len(f.Pairs) }

// At returns the feature value for subject row i, pair column j.
func (f *FeatureMatrix) At(i, j int) float64 {
	return f.Data[i*len(f.Pairs)+j]
}

// SetRow overwrites subject row i with the given feature vector.
func (f *FeatureMatrix) SetRow(i int, values []float64) error {
	if len(values) != len(f.Pairs) {
		return core.NewShapeMismatchError(len(f.Pairs), len(values), "feature columns")
	}
	copy(f.Data[i*len(f.Pairs):(i+1)*len(f.Pairs)], values)
	return nil
}

// Dense returns the matrix as a gonum Dense backed by a copy of the data.
func (f *FeatureMatrix) Dense() *mat.Dense {
	data := make([]float64, len(f.Data))
	copy(data, f.Data)
	return mat.NewDense(len(f.Subjects), len(f.Pairs), data)
}

// ConcatColumns joins feature matrices column-wise (same subjects, features
// appended). Used to stack per-condition task features into one space.
func ConcatColumns(ms ...*FeatureMatrix) (*FeatureMatrix, error) {
	if len(ms) == 0 {
		return nil, fmt.Errorf("no feature matrices to concatenate")
	}
	rows := ms[0].Rows()
	cols := 0
	for _, m := range ms {
		if m.Rows() != rows {
			return nil, core.NewShapeMismatchError(rows, m.Rows(), "subject rows")
		}
		cols += m.Cols()
	}

	pairs := make([]LabelPair, 0, cols)
	for _, m := range ms {
		pairs = append(pairs, m.Pairs...)
	}

	out := NewFeatureMatrix(ms[0].Subjects, pairs)
	for i := 0; i < rows; i++ {
		off := 0
		for _, m := range ms {
			copy(out.Data[i*cols+off:i*cols+off+m.Cols()], m.Data[i*m.Cols():(i+1)*m.Cols()])
			off += m.Cols()
		}
	}
	return out, nil
}

// FeatureSummary is the persisted network-level connectivity summary:
// task -> condition -> subjects x features, plus the rest-state matrix.
type FeatureSummary struct {
	Run       core.RunID
	CreatedAt core.Timestamp
	Rest      *FeatureMatrix
	Tasks     map[core.TaskName]map[core.ConditionName]*FeatureMatrix
}

// Condition fetches a task/condition feature matrix.
func (s *FeatureSummary) Condition(task core.TaskName, condition core.ConditionName) (*FeatureMatrix, error) {
	conditions, ok := s.Tasks[task]
	if !ok {
		return nil, core.NewNotFoundError("task", task.String())
	}
	m, ok := conditions[condition]
	if !ok {
		return nil, core.NewNotFoundError("condition", condition.String())
	}
	return m, nil
}

// NullDistribution is the persisted permutation-test output: one squared
// canonical-correlation vector per trial, indexed by trial. Failed trials
// hold NaN vectors (the documented substitute policy) so indices always
// align with the requested trial count.
type NullDistribution struct {
	Run           core.RunID
	Seed          int64
	Reg           float64
	NumComponents int
	Trials        int
	Completed     int
	Rows          [][]float64
	CreatedAt     core.Timestamp
}
