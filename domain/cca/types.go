package cca

// Config holds the fit parameters for a regularized canonical correlation
// model. Reg is a ridge penalty added to each space's covariance; Kernel
// selects the linear-kernel dual formulation (fit in subject space).
type Config struct {
	Reg           float64
	NumComponents int
	Kernel        bool
}

// Model is the fitted state: per-component canonical correlations (ordered
// descending) and the paired projection weights for each feature space.
// WeightsX is featuresX x components, WeightsY is featuresY x components
// (subjects x components in the kernel formulation).
type Model struct {
	Config   Config
	CanCorrs []float64
	WeightsX [][]float64
	WeightsY [][]float64
}

// NumComponents returns the number of fitted components.
func (m *Model) NumComponents() int {
	return len(m.CanCorrs)
}

// CanCorrsSquared returns the squared canonical correlations, the
// explained-variance statistic accumulated by the permutation test.
func (m *Model) CanCorrsSquared() []float64 {
	out := make([]float64, len(m.CanCorrs))
	for i, r := range m.CanCorrs {
		out[i] = r * r
	}
	return out
}

// ExplainedVariance returns the mean squared canonical correlation across
// components, a single scalar summary of the fit.
func (m *Model) ExplainedVariance() float64 {
	if len(m.CanCorrs) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range m.CanCorrs {
		sum += r * r
	}
	return sum / float64(len(m.CanCorrs))
}
