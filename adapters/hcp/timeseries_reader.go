package hcp

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"neurocca/domain/connectome"
	"neurocca/domain/core"
)

// TimeseriesReader loads pre-parcellated HCP time series from
// whitespace-delimited text files laid out as
//
//	<dataDir>/timeseries/<subject>/<experiment>_<run>.txt
//
// with one parcel per row and one timepoint per column. Series are
// mean-removed per parcel at load time.
type TimeseriesReader struct {
	dataDir string
}

// NewTimeseriesReader creates a reader rooted at dataDir.
func NewTimeseriesReader(dataDir string) *TimeseriesReader {
	return &TimeseriesReader{dataDir: dataDir}
}

// Load reads the requested runs for a subject/experiment. Returns a
// core.ErrNotFound wrap when no requested run file exists.
func (r *TimeseriesReader) Load(ctx context.Context, subject core.SubjectID, experiment string, runs []string) ([]*connectome.Timeseries, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs requested for experiment %s", experiment)
	}
	out := make([]*connectome.Timeseries, 0, len(runs))
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(r.dataDir, "timeseries", subject.String(), fmt.Sprintf("%s_%s.txt", experiment, run))
		data, err := readMatrixFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, core.NewSubjectError(subject, core.TaskName(experiment), "",
					fmt.Errorf("%w: run %s (%s)", core.ErrRunNotFound, run, path))
			}
			return nil, core.NewSubjectError(subject, core.TaskName(experiment), "", err)
		}
		removeParcelMeans(data)
		out = append(out, &connectome.Timeseries{
			Subject:    subject,
			Experiment: experiment,
			Run:        run,
			Data:       data,
		})
	}
	return out, nil
}

// readMatrixFile parses a whitespace-delimited float matrix, one row per
// line. All rows must have the same column count.
func readMatrixFile(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]float64
	cols := -1
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if cols == -1 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, core.NewShapeMismatchError(cols, len(fields), fmt.Sprintf("columns at %s:%d", path, lineNo))
		}
		row := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: parsing %q: %w", path, lineNo, field, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty time series file", path)
	}

	flat := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		flat = append(flat, row...)
	}
	return mat.NewDense(len(rows), cols, flat), nil
}

// removeParcelMeans subtracts each parcel row's temporal mean in place.
func removeParcelMeans(data *mat.Dense) {
	p, t := data.Dims()
	for i := 0; i < p; i++ {
		mean := 0.0
		for j := 0; j < t; j++ {
			mean += data.At(i, j)
		}
		mean /= float64(t)
		for j := 0; j < t; j++ {
			data.Set(i, j, data.At(i, j)-mean)
		}
	}
}
