package connectome

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"neurocca/domain/core"
)

// Timeseries holds one run of pre-parcellated fMRI data for one subject.
// Data is parcels x timepoints and is mean-removed per parcel at load time.
// Immutable once loaded.
type Timeseries struct {
	Subject    core.SubjectID
	Experiment string
	Run        string
	Data       *mat.Dense
}

// Parcels returns the number of parcel rows.
func (ts *Timeseries) Parcels() int {
	r, _ := ts.Data.Dims()
	return r
}

// Timepoints returns the number of time columns.
func (ts *Timeseries) Timepoints() int {
	_, c := ts.Data.Dims()
	return c
}

// Event is one onset/duration/amplitude triple from an EV file, in seconds.
type Event struct {
	Onset     float64
	Duration  float64
	Amplitude float64
}

// EventList holds one run's events for a (task, condition).
type EventList []Event

// EventWindowSet holds per-run frame-index windows for a (subject, task,
// condition). Invariant: every index is in [0, timepoints) for its run.
type EventWindowSet struct {
	Frames [][]int
}

// NewEventWindowSet validates frame windows against per-run timepoint counts.
func NewEventWindowSet(frames [][]int, timepoints []int) (*EventWindowSet, error) {
	if len(frames) != len(timepoints) {
		return nil, core.NewShapeMismatchError(len(timepoints), len(frames), "frame window sets")
	}
	for run, idx := range frames {
		for _, f := range idx {
			if f < 0 || f >= timepoints[run] {
				return nil, fmt.Errorf("run %d: frame index %d out of range [0,%d)", run, f, timepoints[run])
			}
		}
	}
	return &EventWindowSet{Frames: frames}, nil
}

// FramesToWindows converts event triples into frame-index windows.
// Onsets and durations are in seconds; samplingInterval is the TR. The skip
// offset shifts each window forward to account for hemodynamic lag. Windows
// are clipped to [0, timepoints).
func FramesToWindows(events []EventList, samplingInterval float64, skip int, timepoints []int) ([][]int, error) {
	if len(events) != len(timepoints) {
		return nil, core.NewShapeMismatchError(len(timepoints), len(events), "event lists")
	}
	if samplingInterval <= 0 {
		return nil, fmt.Errorf("sampling interval must be positive, got %g", samplingInterval)
	}
	frames := make([][]int, len(events))
	for run, list := range events {
		var idx []int
		for _, ev := range list {
			start := int(ev.Onset/samplingInterval) + skip
			end := int((ev.Onset+ev.Duration)/samplingInterval) + skip
			for f := start; f < end; f++ {
				if f < 0 || f >= timepoints[run] {
					continue
				}
				idx = append(idx, f)
			}
		}
		frames[run] = idx
	}
	return frames, nil
}

// ConnMatrix is a symmetric parcel x parcel Pearson correlation matrix.
// Values lie in [-1, 1] with a unit diagonal.
type ConnMatrix struct {
	m *mat.SymDense
}

// NewConnMatrix wraps a symmetric correlation matrix.
func NewConnMatrix(m *mat.SymDense) *ConnMatrix {
	return &ConnMatrix{m: m}
}

// P returns the parcel count.
func (c *ConnMatrix) P() int {
	n, _ := c.m.Dims()
	return n
}

// At returns the correlation between parcels i and j.
func (c *ConnMatrix) At(i, j int) float64 {
	return c.m.At(i, j)
}

// Sym exposes the underlying symmetric matrix for reduction. Callers must
// not mutate it; cached matrices are shared across permutation trials.
func (c *ConnMatrix) Sym() *mat.SymDense {
	return c.m
}
