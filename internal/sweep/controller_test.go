package sweep

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"sweep-bench/internal/runner"
	"sweep-bench/internal/sampler"
	"sweep-bench/internal/scrape"
)

// stubRunner returns outputs in turn and fails on the listed call numbers.
type stubRunner struct {
	outputs []string
	failOn  map[int]bool
	calls   int
	params  []string
}

func (s *stubRunner) Run(ctx context.Context, params runner.Params) (*runner.Trial, error) {
	s.calls++
	v, _ := params.Lookup("buffer")
	s.params = append(s.params, v)
	if s.failOn[s.calls] {
		return nil, &runner.ExecutionError{Binary: "reader", ExitCode: 1, Err: errors.New("exit status 1")}
	}
	out := s.outputs[(s.calls-1)%len(s.outputs)]
	return &runner.Trial{Output: out}, nil
}

type memorySink struct {
	lines      []*ResultLine
	separators []int
}

func (m *memorySink) WriteLine(line *ResultLine) error {
	m.lines = append(m.lines, line)
	return nil
}

func (m *memorySink) WriteSeparator() error {
	m.separators = append(m.separators, len(m.lines))
	return nil
}

func newSpec(t *testing.T, reps int, opts ...SpecOption) *Spec {
	t.Helper()
	spec, err := NewSpec([]Dimension{
		{Name: "cache", Values: strValues("hot")},
		{Name: "buffer", Values: intValues(1024, 4096)},
	}, reps, opts...)
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	return spec
}

func TestEndToEndAlternatingOutputs(t *testing.T) {
	r := &stubRunner{outputs: []string{"3,50 MB/s", "4,0 MB/s"}}
	sink := &memorySink{}
	c := NewController(newSpec(t, 2), r, scrape.Throughput{}, Options{Sinks: []Sink{sink}})

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.lines) != 2 || len(report.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(sink.lines))
	}
	for i, line := range sink.lines {
		if got := line.Values(); !reflect.DeepEqual(got, []float64{3.5, 4.0}) {
			t.Fatalf("line %d: got %v", i, got)
		}
		if line.Terminated {
			t.Fatalf("line %d unexpectedly terminated", i)
		}
	}
	if !reflect.DeepEqual(r.params, []string{"1024", "1024", "4096", "4096"}) {
		t.Fatalf("trials ran out of order: %v", r.params)
	}
	if report.Trials != 4 {
		t.Fatalf("expected 4 trials, got %d", report.Trials)
	}
}

func TestExecutionErrorStopsPoint(t *testing.T) {
	r := &stubRunner{outputs: []string{"1"}, failOn: map[int]bool{3: true}}
	spec, err := NewSpec([]Dimension{
		{Name: "buffer", Values: intValues(1024, 4096)},
	}, 5)
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	sink := &memorySink{}
	c := NewController(spec, r, scrape.Decimal{}, Options{Sinks: []Sink{sink}})

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	first := sink.lines[0]
	if len(first.Trials) != 2 || !first.Terminated {
		t.Fatalf("expected 2 trials and termination, got %d terminated=%v", len(first.Trials), first.Terminated)
	}
	if first.Trials[0].Repetition != 1 || first.Trials[1].Repetition != 2 {
		t.Fatalf("unexpected repetitions %+v", first.Trials)
	}
	var execErr *runner.ExecutionError
	if !errors.As(first.Err, &execErr) {
		t.Fatalf("expected ExecutionError on line, got %v", first.Err)
	}

	// the sweep continues with the next point
	second := sink.lines[1]
	if len(second.Trials) != 5 || second.Terminated {
		t.Fatalf("second point: %d trials terminated=%v", len(second.Trials), second.Terminated)
	}
	if report.Terminated != 1 {
		t.Fatalf("expected 1 terminated point, got %d", report.Terminated)
	}
}

func TestScrapeErrorRecordsPlaceholder(t *testing.T) {
	r := &stubRunner{outputs: []string{"5 MB/s", "garbage", "6 MB/s"}}
	spec, _ := NewSpec([]Dimension{{Name: "buffer", Values: intValues(1)}}, 3)
	sink := &memorySink{}
	c := NewController(spec, r, scrape.Throughput{}, Options{Sinks: []Sink{sink}})

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	values := sink.lines[0].Values()
	if len(values) != 3 || values[0] != 5 || !math.IsNaN(values[1]) || values[2] != 6 {
		t.Fatalf("unexpected values %v", values)
	}
	if sink.lines[0].Terminated {
		t.Fatalf("scrape failure must not terminate the point")
	}
	if report.Missing != 1 {
		t.Fatalf("expected 1 missing trial, got %d", report.Missing)
	}
}

type countingFlusher struct {
	calls int
}

func (f *countingFlusher) Flush(context.Context) error {
	f.calls++
	return nil
}

func TestHookRunsOncePerMatchingPoint(t *testing.T) {
	spec, err := NewSpec([]Dimension{
		{Name: "cache", Values: strValues("hot", "cold")},
		{Name: "buffer", Values: intValues(1, 2, 3)},
	}, 4)
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	pred, err := CompilePredicate(`cache == 'cold'`, spec.Names())
	if err != nil {
		t.Fatalf("CompilePredicate: %v", err)
	}
	flusher := &countingFlusher{}
	c := NewController(spec, &stubRunner{outputs: []string{"1"}}, scrape.Decimal{}, Options{
		Hook: &Hook{When: pred, Flusher: flusher},
	})
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if flusher.calls != 3 {
		t.Fatalf("expected 3 flushes (one per cold point), got %d", flusher.calls)
	}
}

func TestHookEveryRepetition(t *testing.T) {
	spec, err := NewSpec([]Dimension{
		{Name: "cache", Values: strValues("hot", "cold")},
		{Name: "buffer", Values: intValues(1, 2)},
	}, 3)
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	pred, err := CompilePredicate(`cache == 'cold'`, spec.Names())
	if err != nil {
		t.Fatalf("CompilePredicate: %v", err)
	}
	flusher := &countingFlusher{}
	c := NewController(spec, &stubRunner{outputs: []string{"1"}}, scrape.Decimal{}, Options{
		Hook: &Hook{When: pred, Flusher: flusher, EveryRepetition: true},
	})
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if flusher.calls != 6 {
		t.Fatalf("expected 6 flushes (2 cold points x 3 repetitions), got %d", flusher.calls)
	}
}

type stubSampler struct {
	starts, stops int
	stopErr       error
}

func (s *stubSampler) Start(context.Context) error {
	s.starts++
	return nil
}

func (s *stubSampler) Stop() (sampler.Totals, error) {
	s.stops++
	if s.stopErr != nil {
		return sampler.Totals{}, s.stopErr
	}
	return sampler.Totals{In: 10, Out: 20}, nil
}

func TestSamplerWrapsEveryTrial(t *testing.T) {
	smp := &stubSampler{}
	r := &stubRunner{outputs: []string{"1"}, failOn: map[int]bool{2: true}}
	sink := &memorySink{}
	c := NewController(newSpec(t, 2), r, scrape.Decimal{}, Options{Sampler: smp, Sinks: []Sink{sink}})
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 1 ok + 1 failed on the first point, 2 ok on the second
	if smp.starts != 4 || smp.stops != 4 {
		t.Fatalf("expected 4 start/stop pairs, got %d/%d", smp.starts, smp.stops)
	}
	tr := sink.lines[0].Trials[0].Traffic
	if tr == nil || tr.In != 10 || tr.Out != 20 {
		t.Fatalf("unexpected traffic %+v", tr)
	}
}

func TestSamplerStopErrorGivesZeroTotals(t *testing.T) {
	smp := &stubSampler{stopErr: &sampler.SamplerError{Op: "stop", Err: errors.New("gone")}}
	sink := &memorySink{}
	spec, _ := NewSpec([]Dimension{{Name: "buffer", Values: intValues(1)}}, 1)
	c := NewController(spec, &stubRunner{outputs: []string{"1"}}, scrape.Decimal{}, Options{Sampler: smp, Sinks: []Sink{sink}})
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	tr := sink.lines[0].Trials[0].Traffic
	if tr == nil || *tr != (sampler.Totals{}) {
		t.Fatalf("expected zero totals, got %+v", tr)
	}
	if sink.lines[0].Trials[0].Value != 1 {
		t.Fatalf("trial value lost")
	}
}

func TestGroupSeparators(t *testing.T) {
	spec, err := NewSpec([]Dimension{
		{Name: "cache", Values: strValues("hot", "cold")},
		{Name: "buffer", Values: intValues(1, 2)},
	}, 1, WithGroupDepth(1))
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	sink := &memorySink{}
	c := NewController(spec, &stubRunner{outputs: []string{"1"}}, scrape.Decimal{}, Options{Sinks: []Sink{sink}})
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(sink.separators, []int{2}) {
		t.Fatalf("expected one separator after 2 lines, got %v", sink.separators)
	}
}

func TestCancelledContextStopsSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &memorySink{}
	c := NewController(newSpec(t, 1), &stubRunner{outputs: []string{"1"}}, scrape.Decimal{}, Options{Sinks: []Sink{sink}})
	_, err := c.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sink.lines) != 0 {
		t.Fatalf("expected no lines, got %d", len(sink.lines))
	}
}
