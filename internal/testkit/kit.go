package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"neurocca/domain/connectome"
	"neurocca/domain/core"
)

// SyntheticTimeseries generates a parcels x timepoints matrix where every
// parcel mixes a shared sinusoid (weight sharedSignal) with independent
// noise, then removes each parcel's mean. sharedSignal near 1 yields
// strongly correlated parcels; near 0 yields independent ones.
func SyntheticTimeseries(rng *rand.Rand, parcels, timepoints int, sharedSignal float64) *mat.Dense {
	shared := make([]float64, timepoints)
	for t := range shared {
		shared[t] = math.Sin(2 * math.Pi * float64(t) / 20)
	}
	data := mat.NewDense(parcels, timepoints, nil)
	for p := 0; p < parcels; p++ {
		mean := 0.0
		row := make([]float64, timepoints)
		for t := 0; t < timepoints; t++ {
			row[t] = sharedSignal*shared[t] + (1-sharedSignal)*rng.NormFloat64()
			mean += row[t]
		}
		mean /= float64(timepoints)
		for t := 0; t < timepoints; t++ {
			data.Set(p, t, row[t]-mean)
		}
	}
	return data
}

// BlockPartition builds a label array with parcelsPer consecutive parcels
// per network.
func BlockPartition(networks []string, parcelsPer int) []string {
	labels := make([]string, 0, len(networks)*parcelsPer)
	for _, n := range networks {
		for i := 0; i < parcelsPer; i++ {
			labels = append(labels, n)
		}
	}
	return labels
}

// CorrelatedFeatures generates two feature matrices sharing a latent
// variable with the given coupling strength, so their leading canonical
// correlation is well above the permutation floor.
func CorrelatedFeatures(rng *rand.Rand, n, px, py int, coupling float64) (*mat.Dense, *mat.Dense) {
	latent := make([]float64, n)
	for i := range latent {
		latent[i] = rng.NormFloat64()
	}
	x := mat.NewDense(n, px, nil)
	y := mat.NewDense(n, py, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < px; j++ {
			x.Set(i, j, coupling*latent[i]+(1-coupling)*rng.NormFloat64())
		}
		for j := 0; j < py; j++ {
			y.Set(i, j, coupling*latent[i]+(1-coupling)*rng.NormFloat64())
		}
	}
	return x, y
}

// SyntheticConnCache builds a per-subject cache of connectivity matrices
// from synthetic series, for driver and reducer tests.
func SyntheticConnCache(rng *rand.Rand, subjects, parcels, timepoints int, sharedSignal float64,
	parcelMatrix func(runs []*mat.Dense, windows [][]int) (*connectome.ConnMatrix, error)) (*connectome.ConnCache, error) {

	ids := make([]core.SubjectID, subjects)
	matrices := make([]*connectome.ConnMatrix, subjects)
	windows := [][]int{allFrames(timepoints)}
	for i := 0; i < subjects; i++ {
		ids[i] = core.SubjectID(fmt.Sprintf("subj-%03d", i))
		series := SyntheticTimeseries(rng, parcels, timepoints, sharedSignal)
		cm, err := parcelMatrix([]*mat.Dense{series}, windows)
		if err != nil {
			return nil, err
		}
		matrices[i] = cm
	}
	return connectome.NewConnCache(ids, matrices)
}

func allFrames(timepoints int) []int {
	frames := make([]int, timepoints)
	for i := range frames {
		frames[i] = i
	}
	return frames
}
