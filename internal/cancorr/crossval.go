package cancorr

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"neurocca/domain/cca"
)

// CVResult reports the selected hyperparameters and the per-candidate mean
// held-out scores for auditability.
type CVResult struct {
	Best   cca.Config
	Model  *cca.Model
	Scores map[string]float64
}

// FitCV selects Reg and NumComponents by k-fold cross-validation over
// subjects: each candidate is trained on held-in folds and scored by the
// mean held-out canonical correlation, then the winner is refit on the
// full data. Ties prefer fewer components, then smaller regularization.
//
// Candidates are always scored in the primal formulation; the kernel flag
// only applies to the final refit (the linear-kernel dual is equivalent up
// to regularization scale, so the selection transfers).
func (e *Engine) FitCV(X, Y *mat.Dense, regGrid []float64, compGrid []int, folds int, seed int64, kernel bool) (*CVResult, error) {
	n, _ := X.Dims()
	if len(regGrid) == 0 || len(compGrid) == 0 {
		return nil, fmt.Errorf("empty hyperparameter grid")
	}
	if folds < 2 {
		return nil, fmt.Errorf("cross-validation requires at least 2 folds, got %d", folds)
	}
	if folds > n {
		folds = n
	}

	regs := append([]float64(nil), regGrid...)
	sort.Float64s(regs)
	comps := append([]int(nil), compGrid...)
	sort.Ints(comps)

	assignments := foldAssignments(n, folds, seed)

	scores := make(map[string]float64)
	bestScore := math.Inf(-1)
	var best cca.Config
	found := false

	// comps ascending, then regs ascending: strict improvement keeps the
	// earlier (simpler) candidate on ties.
	for _, k := range comps {
		for _, reg := range regs {
			cfg := cca.Config{Reg: reg, NumComponents: k}
			score, ok := e.scoreCandidate(X, Y, cfg, assignments, folds)
			key := fmt.Sprintf("reg=%g,k=%d", reg, k)
			if !ok {
				scores[key] = math.NaN()
				continue
			}
			scores[key] = score
			if score > bestScore+1e-12 {
				bestScore = score
				best = cfg
				found = true
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("no cross-validation candidate produced a valid fit")
	}

	best.Kernel = kernel
	model, err := e.Fit(X, Y, best)
	if err != nil {
		return nil, err
	}
	return &CVResult{Best: best, Model: model, Scores: scores}, nil
}

// scoreCandidate returns the mean held-out canonical correlation across
// folds, or ok=false when any fold fails to fit.
func (e *Engine) scoreCandidate(X, Y *mat.Dense, cfg cca.Config, assignments []int, folds int) (float64, bool) {
	total := 0.0
	counted := 0
	for fold := 0; fold < folds; fold++ {
		trainIdx, testIdx := splitFold(assignments, fold)
		if len(trainIdx) < 3 || len(testIdx) < 2 {
			return 0, false
		}
		trainX, testX := selectRows(X, trainIdx), selectRows(X, testIdx)
		trainY, testY := selectRows(Y, trainIdx), selectRows(Y, testIdx)

		model, err := e.Fit(trainX, trainY, cfg)
		if err != nil {
			return 0, false
		}

		u := project(testX, trainX, model.WeightsX)
		v := project(testY, trainY, model.WeightsY)

		foldScore := 0.0
		for k := 0; k < cfg.NumComponents; k++ {
			r := stat.Correlation(column(u, k), column(v, k), nil)
			if math.IsNaN(r) {
				return 0, false
			}
			foldScore += math.Abs(r)
		}
		total += foldScore / float64(cfg.NumComponents)
		counted++
	}
	return total / float64(counted), true
}

// foldAssignments deterministically shuffles subject indices and deals them
// round-robin into folds.
func foldAssignments(n, folds int, seed int64) []int {
	rng := rand.New(rand.NewSource(seed))
	order := rng.Perm(n)
	assignments := make([]int, n)
	for pos, idx := range order {
		assignments[idx] = pos % folds
	}
	return assignments
}

func splitFold(assignments []int, fold int) (train, test []int) {
	for i, f := range assignments {
		if f == fold {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	return train, test
}

func selectRows(X *mat.Dense, idx []int) *mat.Dense {
	_, p := X.Dims()
	out := mat.NewDense(len(idx), p, nil)
	for i, r := range idx {
		for j := 0; j < p; j++ {
			out.Set(i, j, X.At(r, j))
		}
	}
	return out
}

// project maps held-out rows through weights fitted on centered training
// data, centering the test rows with the training column means.
func project(test, train *mat.Dense, weights [][]float64) *mat.Dense {
	nTest, p := test.Dims()
	comps := len(weights[0])
	out := mat.NewDense(nTest, comps, nil)
	for j := 0; j < p; j++ {
		mean, _ := columnMoments(train, j)
		for i := 0; i < nTest; i++ {
			centered := test.At(i, j) - mean
			for k := 0; k < comps; k++ {
				out.Set(i, k, out.At(i, k)+centered*weights[j][k])
			}
		}
	}
	return out
}

func column(m *mat.Dense, j int) []float64 {
	n, _ := m.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = m.At(i, j)
	}
	return out
}
