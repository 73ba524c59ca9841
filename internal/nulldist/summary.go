package nulldist

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"neurocca/domain/connectome"
)

// Summary describes a null distribution of explained-variance statistics.
// Rows with NaN entries (substituted failed trials) and unattempted rows
// are excluded before any statistic is computed.
type Summary struct {
	Samples      int
	Excluded     int
	Mean         float64
	StdDev       float64
	Min          float64
	Max          float64
	Percentile95 float64
	Percentile99 float64
}

// Summarize reduces each null row to its explained variance (mean squared
// canonical correlation) and summarizes the resulting distribution.
func Summarize(dist *connectome.NullDistribution) (*Summary, error) {
	values := explainedVariances(dist)
	excluded := dist.Trials - len(values)
	if len(values) == 0 {
		return nil, fmt.Errorf("null distribution has no usable samples (%d excluded)", excluded)
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return nil, err
	}
	sd, err := stats.StandardDeviationSample(values)
	if err != nil {
		// single sample
		sd = 0
	}
	min, _ := stats.Min(values)
	max, _ := stats.Max(values)
	p95, _ := stats.Percentile(values, 95)
	p99, _ := stats.Percentile(values, 99)

	return &Summary{
		Samples:      len(values),
		Excluded:     excluded,
		Mean:         mean,
		StdDev:       sd,
		Min:          min,
		Max:          max,
		Percentile95: p95,
		Percentile99: p99,
	}, nil
}

// EmpiricalPValue returns the proportion of null samples at or above the
// observed explained variance. With no usable samples the p-value is 1.
func EmpiricalPValue(observed float64, dist *connectome.NullDistribution) float64 {
	values := explainedVariances(dist)
	if len(values) == 0 {
		return 1
	}
	extreme := 0
	for _, v := range values {
		if v >= observed {
			extreme++
		}
	}
	return float64(extreme) / float64(len(values))
}

func explainedVariances(dist *connectome.NullDistribution) []float64 {
	values := make([]float64, 0, len(dist.Rows))
	for _, row := range dist.Rows {
		if row == nil {
			continue
		}
		sum := 0.0
		usable := true
		for _, v := range row {
			if math.IsNaN(v) {
				usable = false
				break
			}
			sum += v
		}
		if !usable || len(row) == 0 {
			continue
		}
		values = append(values, sum/float64(len(row)))
	}
	return values
}
