package output

import (
	"encoding/json"
	"io"

	"sweep-bench/internal/sweep"
)

type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is the serialized form of a result line.
type Record struct {
	Index      int                 `json:"index"`
	Params     []Param             `json:"params"`
	Trials     []sweep.TrialResult `json:"trials"`
	Terminated bool                `json:"terminated,omitempty"`
	Error      string              `json:"error,omitempty"`
}

func NewRecord(line *sweep.ResultLine) Record {
	rec := Record{
		Index:      line.Point.Index(),
		Params:     make([]Param, line.Point.Len()),
		Trials:     line.Trials,
		Terminated: line.Terminated,
	}
	for i := 0; i < line.Point.Len(); i++ {
		rec.Params[i] = Param{Name: line.Point.Name(i), Value: line.Point.Value(i).String()}
	}
	if rec.Trials == nil {
		rec.Trials = []sweep.TrialResult{}
	}
	if line.Err != nil {
		rec.Error = line.Err.Error()
	}
	return rec
}

// JSON writes one JSON object per line.
type JSON struct {
	enc *json.Encoder
}

func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

func (j *JSON) WriteLine(line *sweep.ResultLine) error {
	return j.enc.Encode(NewRecord(line))
}

// WriteSeparator is a no-op; records carry their parameters.
func (j *JSON) WriteSeparator() error {
	return nil
}

func (j *JSON) Close() error {
	return nil
}
