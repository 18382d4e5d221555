package sweep

import (
	"math"
	"time"

	"sweep-bench/internal/sampler"
)

// TrialResult is the reduced outcome of one repetition.
type TrialResult struct {
	Repetition int               `json:"repetition"`
	Value      float64           `json:"value"`
	Missing    bool              `json:"missing,omitempty"`
	Error      string            `json:"error,omitempty"`
	Duration   time.Duration     `json:"duration_ns"`
	Traffic    *sampler.Totals   `json:"traffic,omitempty"`
	Counters   map[string]uint64 `json:"counters,omitempty"`
}

// ResultLine collects the repetitions of one point. Terminated is set when
// an execution failure cut the repetitions short; Err holds that failure.
type ResultLine struct {
	Point      Point
	Trials     []TrialResult
	Terminated bool
	Err        error
}

// Values returns one number per completed repetition, NaN where the output
// could not be scraped.
func (l *ResultLine) Values() []float64 {
	values := make([]float64, len(l.Trials))
	for i, t := range l.Trials {
		if t.Missing {
			values[i] = math.NaN()
		} else {
			values[i] = t.Value
		}
	}
	return values
}

// Report is what a finished (or interrupted) sweep produced.
type Report struct {
	Lines      []*ResultLine
	Started    time.Time
	Finished   time.Time
	Trials     int
	Missing    int
	Terminated int
}

func (r *Report) add(line *ResultLine) {
	r.Lines = append(r.Lines, line)
	r.Trials += len(line.Trials)
	for _, t := range line.Trials {
		if t.Missing {
			r.Missing++
		}
	}
	if line.Terminated {
		r.Terminated++
	}
}
