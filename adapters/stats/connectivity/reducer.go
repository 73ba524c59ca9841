package connectivity

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"neurocca/domain/connectome"
	"neurocca/domain/core"
)

// Level selects the reduction output granularity.
type Level string

const (
	// LevelParcel returns the full parcel x parcel correlation matrix.
	LevelParcel Level = "parcel"
	// LevelNetwork returns the network-pair block-mean feature vector.
	LevelNetwork Level = "network"
)

// Reduction is the output of a reduce call; exactly one of Matrix or
// Features is populated depending on the requested level.
type Reduction struct {
	Level    Level
	Matrix   *connectome.ConnMatrix
	Features []float64
}

// Reducer computes functional connectivity from selected time frames and
// reduces it to parcel- or network-level summaries. Stateless; every output
// is a pure function of the inputs.
type Reducer struct{}

// NewReducer creates a connectivity reducer.
func NewReducer() *Reducer {
	return &Reducer{}
}

// Reduce runs the full pipeline: frame selection, Pearson correlation, and
// the requested reduction level.
func (r *Reducer) Reduce(runs []*mat.Dense, windows [][]int, partition *connectome.NetworkPartition, level Level) (*Reduction, error) {
	cm, err := r.ParcelMatrix(runs, windows)
	if err != nil {
		return nil, err
	}
	switch level {
	case LevelParcel:
		return &Reduction{Level: LevelParcel, Matrix: cm}, nil
	case LevelNetwork:
		features, err := r.NetworkFeatures(cm, partition)
		if err != nil {
			return nil, err
		}
		return &Reduction{Level: LevelNetwork, Features: features}, nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidLevel, level)
	}
}

// ParcelMatrix filters each run's frame window to in-range indices,
// concatenates the selected frames across runs along the time axis, and
// computes the parcel x parcel Pearson correlation matrix.
func (r *Reducer) ParcelMatrix(runs []*mat.Dense, windows [][]int) (*connectome.ConnMatrix, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs supplied")
	}
	if len(runs) != len(windows) {
		return nil, core.NewShapeMismatchError(len(runs), len(windows), "frame window sets")
	}

	parcels, _ := runs[0].Dims()
	total := 0
	selected := make([][]int, len(runs))
	for i, run := range runs {
		p, t := run.Dims()
		if p != parcels {
			return nil, core.NewShapeMismatchError(parcels, p, "parcel rows")
		}
		for _, f := range windows[i] {
			if f < 0 || f >= t {
				continue
			}
			selected[i] = append(selected[i], f)
		}
		total += len(selected[i])
	}
	if total < 2 {
		return nil, fmt.Errorf("%w: %d selected frames, need at least 2 for correlation", core.ErrDegenerateInput, total)
	}

	// samples x variables layout for stat.CorrelationMatrix
	samples := mat.NewDense(total, parcels, nil)
	row := 0
	for i, run := range runs {
		for _, f := range selected[i] {
			for p := 0; p < parcels; p++ {
				samples.Set(row, p, run.At(p, f))
			}
			row++
		}
	}

	corr := mat.NewSymDense(parcels, nil)
	stat.CorrelationMatrix(corr, samples, nil)
	return connectome.NewConnMatrix(corr), nil
}

// NetworkFeatures reduces a parcel-level matrix to one scalar per network
// pair: the mean over the block of entries whose row parcel carries label A
// and column parcel carries label B. Same-label blocks include the diagonal.
func (r *Reducer) NetworkFeatures(cm *connectome.ConnMatrix, partition *connectome.NetworkPartition) ([]float64, error) {
	if partition == nil {
		return nil, fmt.Errorf("network reduction requires a partition")
	}
	if cm.P() != partition.Parcels() {
		return nil, core.NewShapeMismatchError(partition.Parcels(), cm.P(), "parcels")
	}

	pairs := partition.Pairs()
	features := make([]float64, len(pairs))
	for k := range pairs {
		rows, cols := partition.PairBlocks(k)
		sum := 0.0
		for _, i := range rows {
			for _, j := range cols {
				sum += cm.At(i, j)
			}
		}
		features[k] = sum / float64(len(rows)*len(cols))
	}
	return features, nil
}

// FeatureMatrix rebuilds the subjects x network-pair feature matrix from a
// cache of parcel-level matrices under the given partition. This is the
// per-trial workhorse of the permutation test: the cached matrices never
// change, only the grouping does.
func (r *Reducer) FeatureMatrix(cache *connectome.ConnCache, partition *connectome.NetworkPartition) (*connectome.FeatureMatrix, error) {
	fm := connectome.NewFeatureMatrix(cache.Subjects(), partition.Pairs())
	for i := 0; i < cache.Len(); i++ {
		features, err := r.NetworkFeatures(cache.Matrix(i), partition)
		if err != nil {
			return nil, err
		}
		if err := fm.SetRow(i, features); err != nil {
			return nil, err
		}
	}
	return fm, nil
}
