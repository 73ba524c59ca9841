package hcp

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"neurocca/domain/connectome"
	"neurocca/domain/core"
)

// EVReader loads HCP explanatory-variable (event timing) files laid out as
//
//	<dataDir>/ev/<subject>/<task>_<run>/<condition>.txt
//
// with one "onset duration amplitude" line per event, values in seconds.
type EVReader struct {
	dataDir string
	runs    []string
}

// NewEVReader creates a reader rooted at dataDir for the given run order.
// The run order must match the TimeseriesReader's so per-run windows align.
func NewEVReader(dataDir string, runs []string) *EVReader {
	return &EVReader{dataDir: dataDir, runs: runs}
}

// LoadEvents reads the per-run event lists for a (subject, task, condition).
func (r *EVReader) LoadEvents(ctx context.Context, subject core.SubjectID, task core.TaskName, condition core.ConditionName) ([]connectome.EventList, error) {
	out := make([]connectome.EventList, 0, len(r.runs))
	for _, run := range r.runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(r.dataDir, "ev", subject.String(),
			fmt.Sprintf("%s_%s", task, run), condition.String()+".txt")
		events, err := readEVFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, core.NewSubjectError(subject, task, condition,
					fmt.Errorf("%w (%s)", core.ErrConditionNotFound, path))
			}
			return nil, core.NewSubjectError(subject, task, condition, err)
		}
		out = append(out, events)
	}
	return out, nil
}

func readEVFile(path string) (connectome.EventList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events connectome.EventList
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, core.NewShapeMismatchError(3, len(fields), fmt.Sprintf("EV fields at %s:%d", path, lineNo))
		}
		var values [3]float64
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: parsing %q: %w", path, lineNo, fields[i], err)
			}
			values[i] = v
		}
		events = append(events, connectome.Event{
			Onset:     values[0],
			Duration:  values[1],
			Amplitude: values[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
