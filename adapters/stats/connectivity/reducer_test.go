package connectivity

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"neurocca/domain/connectome"
	"neurocca/domain/core"
	"neurocca/internal/testkit"
)

// identicalParcelSeries builds a parcels x timepoints matrix where every
// parcel carries the same (non-constant) signal, so all pairwise
// correlations are exactly 1.
func identicalParcelSeries(parcels, timepoints int) *mat.Dense {
	data := mat.NewDense(parcels, timepoints, nil)
	for p := 0; p < parcels; p++ {
		for t := 0; t < timepoints; t++ {
			data.Set(p, t, math.Sin(float64(t)))
		}
	}
	return data
}

func allFrames(n int) []int {
	frames := make([]int, n)
	for i := range frames {
		frames[i] = i
	}
	return frames
}

func TestReducer_TwoNetworkScenario(t *testing.T) {
	// 2 networks x 4 parcels, perfectly correlated parcels: the feature
	// vector has length C(2,2)+2 = 3 and every entry is 1.0
	labels := testkit.BlockPartition([]string{"A", "B"}, 4)
	partition, err := connectome.NewNetworkPartition(labels)
	if err != nil {
		t.Fatalf("NewNetworkPartition: %v", err)
	}

	r := NewReducer()
	series := identicalParcelSeries(8, 30)
	cm, err := r.ParcelMatrix([]*mat.Dense{series}, [][]int{allFrames(30)})
	if err != nil {
		t.Fatalf("ParcelMatrix: %v", err)
	}

	features, err := r.NetworkFeatures(cm, partition)
	if err != nil {
		t.Fatalf("NetworkFeatures: %v", err)
	}
	if len(features) != 3 {
		t.Fatalf("expected 3 network-pair features, got %d", len(features))
	}
	for i, f := range features {
		if math.Abs(f-1.0) > 1e-12 {
			t.Errorf("feature %d: expected 1.0, got %g", i, f)
		}
	}
}

func TestReducer_FeatureLengthMatchesPairCount(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, networks := range [][]string{
		{"A", "B"},
		{"A", "B", "C"},
		{"A", "B", "C", "D", "E"},
	} {
		labels := testkit.BlockPartition(networks, 3)
		partition, _ := connectome.NewNetworkPartition(labels)

		r := NewReducer()
		series := testkit.SyntheticTimeseries(rng, len(labels), 50, 0.3)
		cm, err := r.ParcelMatrix([]*mat.Dense{series}, [][]int{allFrames(50)})
		if err != nil {
			t.Fatalf("ParcelMatrix: %v", err)
		}
		features, err := r.NetworkFeatures(cm, partition)
		if err != nil {
			t.Fatalf("NetworkFeatures: %v", err)
		}
		k := len(networks)
		want := k*(k-1)/2 + k
		if len(features) != want {
			t.Errorf("K=%d: expected %d features, got %d", k, want, len(features))
		}
	}
}

func TestReducer_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	labels := testkit.BlockPartition([]string{"A", "B", "C"}, 4)
	partition, _ := connectome.NewNetworkPartition(labels)

	r := NewReducer()
	series := testkit.SyntheticTimeseries(rng, 12, 60, 0.4)
	windows := [][]int{allFrames(60)}

	first, err := r.Reduce([]*mat.Dense{series}, windows, partition, LevelNetwork)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	second, err := r.Reduce([]*mat.Dense{series}, windows, partition, LevelNetwork)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	for i := range first.Features {
		if first.Features[i] != second.Features[i] {
			t.Fatalf("reduction is not idempotent at feature %d", i)
		}
	}
}

func TestReducer_RunOrderInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	r := NewReducer()
	run1 := testkit.SyntheticTimeseries(rng, 6, 40, 0.5)
	run2 := testkit.SyntheticTimeseries(rng, 6, 40, 0.5)
	windows := [][]int{allFrames(40), allFrames(40)}

	forward, err := r.ParcelMatrix([]*mat.Dense{run1, run2}, windows)
	if err != nil {
		t.Fatalf("ParcelMatrix: %v", err)
	}
	reversed, err := r.ParcelMatrix([]*mat.Dense{run2, run1}, windows)
	if err != nil {
		t.Fatalf("ParcelMatrix: %v", err)
	}
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			if math.Abs(forward.At(i, j)-reversed.At(i, j)) > 1e-12 {
				t.Fatalf("correlation depends on run order at (%d,%d)", i, j)
			}
		}
	}
}

func TestReducer_OutOfRangeFramesFiltered(t *testing.T) {
	r := NewReducer()
	series := identicalParcelSeries(4, 10)
	// indices past the run end and negative indices are dropped, not fatal
	cm, err := r.ParcelMatrix([]*mat.Dense{series}, [][]int{{-3, 0, 1, 2, 50, 99}})
	if err != nil {
		t.Fatalf("ParcelMatrix: %v", err)
	}
	if cm.P() != 4 {
		t.Fatalf("expected 4 parcels, got %d", cm.P())
	}
}

func TestReducer_ShapeMismatch(t *testing.T) {
	r := NewReducer()
	series := identicalParcelSeries(4, 10)
	_, err := r.ParcelMatrix([]*mat.Dense{series}, [][]int{{0, 1}, {0, 1}})
	if !errors.Is(err, core.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestReducer_InvalidLevel(t *testing.T) {
	labels := testkit.BlockPartition([]string{"A", "B"}, 2)
	partition, _ := connectome.NewNetworkPartition(labels)
	r := NewReducer()
	series := identicalParcelSeries(4, 10)
	_, err := r.Reduce([]*mat.Dense{series}, [][]int{allFrames(10)}, partition, Level("voxel"))
	if !errors.Is(err, core.ErrInvalidLevel) {
		t.Fatalf("expected ErrInvalidLevel, got %v", err)
	}
}

func TestReducer_FeatureMatrixFromCache(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	labels := testkit.BlockPartition([]string{"A", "B"}, 4)
	partition, _ := connectome.NewNetworkPartition(labels)

	r := NewReducer()
	cache, err := testkit.SyntheticConnCache(rng, 5, 8, 40, 0.4, r.ParcelMatrix)
	if err != nil {
		t.Fatalf("SyntheticConnCache: %v", err)
	}

	fm, err := r.FeatureMatrix(cache, partition)
	if err != nil {
		t.Fatalf("FeatureMatrix: %v", err)
	}
	if fm.Rows() != 5 || fm.Cols() != 3 {
		t.Fatalf("expected 5x3 feature matrix, got %dx%d", fm.Rows(), fm.Cols())
	}
}
