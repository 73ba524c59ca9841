package cancorr

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"neurocca/domain/cca"
	"neurocca/domain/core"
)

// svTolerance is the relative singular-value cutoff used for rank
// estimation, and the slack allowed before a canonical correlation outside
// [0,1] is treated as numerical instability.
const svTolerance = 1e-10

// Engine fits regularized canonical correlation models between two
// multivariate feature sets. The engine never standardizes its inputs:
// canonical correlations are sensitive to feature scaling, so callers must
// apply Standardize consistently across trials for comparable
// null-distribution statistics.
type Engine struct{}

// NewEngine creates a CCA engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Fit solves the ridge-regularized CCA between X (subjects x featuresX) and
// Y (subjects x featuresY) via the whitened cross-covariance SVD: with
// Cxx, Cyy regularized by cfg.Reg on the diagonal, the singular values of
// Cxx^{-1/2} Cxy Cyy^{-1/2} are the canonical correlations (descending by
// construction) and the singular vectors map back through the whitening
// transforms to the projection weights.
//
// With cfg.Kernel, X and Y are replaced by their centered linear Gram
// matrices and the same machinery runs in subject space; the returned
// weights are then dual coefficients (subjects x components).
func (e *Engine) Fit(X, Y *mat.Dense, cfg cca.Config) (*cca.Model, error) {
	if cfg.Reg < 0 {
		return nil, fmt.Errorf("regularization must be non-negative, got %g", cfg.Reg)
	}
	if cfg.NumComponents < 1 {
		return nil, fmt.Errorf("num_components must be at least 1, got %d", cfg.NumComponents)
	}
	n, px := X.Dims()
	ny, py := Y.Dims()
	if n != ny {
		return nil, core.NewShapeMismatchError(n, ny, "subject rows")
	}
	if n < 3 {
		return nil, fmt.Errorf("%w: %d subjects, need at least 3", core.ErrDegenerateInput, n)
	}
	if err := checkVariance(X, "X"); err != nil {
		return nil, err
	}
	if err := checkVariance(Y, "Y"); err != nil {
		return nil, err
	}

	Xc := centerColumns(X)
	Yc := centerColumns(Y)

	rankX := matrixRank(Xc)
	rankY := matrixRank(Yc)

	if cfg.Kernel {
		Xc = centeredGram(Xc)
		Yc = centeredGram(Yc)
		px, py = n, n
	}

	maxComponents := rankX
	if rankY < maxComponents {
		maxComponents = rankY
	}
	if px < maxComponents {
		maxComponents = px
	}
	if py < maxComponents {
		maxComponents = py
	}
	if cfg.NumComponents > maxComponents {
		return nil, fmt.Errorf("%w: requested %d components, rank supports %d",
			core.ErrInsufficientRank, cfg.NumComponents, maxComponents)
	}

	cxx := covariance(Xc, Xc, cfg.Reg)
	cyy := covariance(Yc, Yc, cfg.Reg)
	cxy := covariance(Xc, Yc, 0)

	wx, err := invSqrtSym(cxx)
	if err != nil {
		return nil, err
	}
	wy, err := invSqrtSym(cyy)
	if err != nil {
		return nil, err
	}

	// whitened cross-covariance
	var m mat.Dense
	m.Mul(wx, cxy)
	m.Mul(&m, wy)

	var svd mat.SVD
	if ok := svd.Factorize(&m, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: SVD of whitened cross-covariance failed", core.ErrNumericalInstability)
	}
	sigma := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	canCorrs := make([]float64, cfg.NumComponents)
	for k := 0; k < cfg.NumComponents; k++ {
		r := sigma[k]
		if math.IsNaN(r) || r < -svTolerance || r > 1+1e-6 {
			return nil, fmt.Errorf("%w: canonical correlation %g outside [0,1] (reg too small?)",
				core.ErrNumericalInstability, r)
		}
		canCorrs[k] = math.Min(math.Max(r, 0), 1)
	}

	// map singular vectors back through the whitening transforms
	var ax, by mat.Dense
	ax.Mul(wx, u.Slice(0, px, 0, cfg.NumComponents))
	by.Mul(wy, v.Slice(0, py, 0, cfg.NumComponents))

	return &cca.Model{
		Config:   cfg,
		CanCorrs: canCorrs,
		WeightsX: denseToRows(&ax),
		WeightsY: denseToRows(&by),
	}, nil
}

// Standardize z-scores each column in place on a copy. Returns
// core.ErrDegenerateInput for zero-variance columns.
func Standardize(X *mat.Dense) (*mat.Dense, error) {
	n, p := X.Dims()
	out := mat.DenseCopyOf(X)
	for j := 0; j < p; j++ {
		mean, sd := columnMoments(X, j)
		if sd == 0 {
			return nil, fmt.Errorf("%w: column %d", core.ErrDegenerateInput, j)
		}
		for i := 0; i < n; i++ {
			out.Set(i, j, (X.At(i, j)-mean)/sd)
		}
	}
	return out, nil
}

func checkVariance(X *mat.Dense, name string) error {
	_, p := X.Dims()
	for j := 0; j < p; j++ {
		if _, sd := columnMoments(X, j); sd == 0 {
			return fmt.Errorf("%w: %s column %d", core.ErrDegenerateInput, name, j)
		}
	}
	return nil
}

func columnMoments(X *mat.Dense, j int) (mean, sd float64) {
	n, _ := X.Dims()
	for i := 0; i < n; i++ {
		mean += X.At(i, j)
	}
	mean /= float64(n)
	var ss float64
	for i := 0; i < n; i++ {
		d := X.At(i, j) - mean
		ss += d * d
	}
	if n > 1 {
		sd = math.Sqrt(ss / float64(n-1))
	}
	return mean, sd
}

func centerColumns(X *mat.Dense) *mat.Dense {
	n, p := X.Dims()
	out := mat.NewDense(n, p, nil)
	for j := 0; j < p; j++ {
		mean, _ := columnMoments(X, j)
		for i := 0; i < n; i++ {
			out.Set(i, j, X.At(i, j)-mean)
		}
	}
	return out
}

// centeredGram builds the doubly centered linear kernel matrix X Xt for the
// dual formulation.
func centeredGram(Xc *mat.Dense) *mat.Dense {
	n, _ := Xc.Dims()
	gram := mat.NewDense(n, n, nil)
	gram.Mul(Xc, Xc.T())

	rowMeans := make([]float64, n)
	total := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rowMeans[i] += gram.At(i, j)
		}
		rowMeans[i] /= float64(n)
		total += rowMeans[i]
	}
	total /= float64(n)

	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, gram.At(i, j)-rowMeans[i]-rowMeans[j]+total)
		}
	}
	return out
}

func matrixRank(Xc *mat.Dense) int {
	var svd mat.SVD
	if ok := svd.Factorize(Xc, mat.SVDNone); !ok {
		return 0
	}
	values := svd.Values(nil)
	if len(values) == 0 {
		return 0
	}
	cutoff := values[0] * svTolerance * float64(len(values))
	rank := 0
	for _, s := range values {
		if s > cutoff {
			rank++
		}
	}
	return rank
}

// covariance computes A'B/(n-1) with a ridge term on the diagonal when
// A == B and reg > 0.
func covariance(A, B *mat.Dense, reg float64) *mat.Dense {
	n, _ := A.Dims()
	var c mat.Dense
	c.Mul(A.T(), B)
	c.Scale(1/float64(n-1), &c)
	if reg > 0 {
		r, _ := c.Dims()
		for i := 0; i < r; i++ {
			c.Set(i, i, c.At(i, i)+reg)
		}
	}
	return &c
}

// invSqrtSym computes the inverse square root of a symmetric positive
// definite matrix via its eigendecomposition.
func invSqrtSym(c *mat.Dense) (*mat.Dense, error) {
	n, _ := c.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (c.At(i, j)+c.At(j, i))/2)
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, fmt.Errorf("%w: eigendecomposition of covariance failed", core.ErrNumericalInstability)
	}
	vals := es.Values(nil)
	var q mat.Dense
	es.VectorsTo(&q)

	maxVal := 0.0
	for _, v := range vals {
		if v > maxVal {
			maxVal = v
		}
	}
	scaled := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		if vals[j] <= maxVal*svTolerance || vals[j] <= 0 {
			return nil, fmt.Errorf("%w: near-singular covariance (eigenvalue %g), increase reg",
				core.ErrNumericalInstability, vals[j])
		}
		inv := 1 / math.Sqrt(vals[j])
		for i := 0; i < n; i++ {
			scaled.Set(i, j, q.At(i, j)*inv)
		}
	}
	var out mat.Dense
	out.Mul(scaled, q.T())
	return &out, nil
}

func denseToRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
		}
		out[i] = row
	}
	return out
}
