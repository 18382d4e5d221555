package runner

import (
	"context"
	"errors"
	"os/exec"
	"reflect"
	"strings"
	"testing"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExpand(t *testing.T) {
	params := MapParams{"block_size": "512", "file": "2000M", "opt": ""}
	got, err := Expand([]string{"-f", "/data/bs{block_size}/{file}", "{opt}", "-b", "4096"}, params)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []string{"-f", "/data/bs512/2000M", "-b", "4096"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
}

func TestExpandKeepsSpecialCharacters(t *testing.T) {
	got, err := Expand([]string{"{file}"}, MapParams{"file": "/tmp/a file; rm -rf x"})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) != 1 || got[0] != "/tmp/a file; rm -rf x" {
		t.Fatalf("unexpected expansion %v", got)
	}
}

func TestExpandUnknownParameter(t *testing.T) {
	if _, err := Expand([]string{"{nope}"}, MapParams{}); err == nil {
		t.Fatalf("expected error for unknown parameter")
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders([]string{"-f", "/data/bs{block_size}/{file}", "{block_size}"})
	want := []string{"block_size", "file"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Placeholders = %v, want %v", got, want)
	}
}

func TestRunCapturesStdout(t *testing.T) {
	requireShell(t)
	r := NewRunner("sh", []string{"-c", "echo '{value} MB/s'"}, nil, false)
	trial, err := r.Run(context.Background(), MapParams{"value": "3,50"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(trial.Output) != "3,50 MB/s" {
		t.Fatalf("unexpected output %q", trial.Output)
	}
}

func TestRunMergeStderr(t *testing.T) {
	requireShell(t)
	r := NewRunner("sh", []string{"-c", "echo '1,2 GB/s' 1>&2"}, nil, true)
	trial, err := r.Run(context.Background(), MapParams{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(trial.Output, "GB/s") {
		t.Fatalf("stderr not merged: %q", trial.Output)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	requireShell(t)
	r := NewRunner("sh", []string{"-c", "echo boom 1>&2; exit 3"}, nil, false)
	_, err := r.Run(context.Background(), MapParams{})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if execErr.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", execErr.ExitCode)
	}
	if !strings.Contains(execErr.Stderr, "boom") {
		t.Fatalf("expected stderr to be captured, got %q", execErr.Stderr)
	}
}

func TestRunMissingBinary(t *testing.T) {
	r := NewRunner("/nonexistent/sweep-bench-reader", nil, nil, false)
	_, err := r.Run(context.Background(), MapParams{})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if execErr.ExitCode != -1 {
		t.Fatalf("expected exit code -1, got %d", execErr.ExitCode)
	}
}

type fakeObserver struct {
	pid      int
	detached bool
}

func (f *fakeObserver) Attach(pid int) error {
	f.pid = pid
	return nil
}

func (f *fakeObserver) Detach() (map[string]uint64, error) {
	f.detached = true
	return map[string]uint64{"instructions": 42}, nil
}

func TestRunObserver(t *testing.T) {
	requireShell(t)
	obs := &fakeObserver{}
	r := NewRunner("sh", []string{"-c", "echo 1"}, nil, false)
	r.Observer = obs
	trial, err := r.Run(context.Background(), MapParams{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if obs.pid == 0 || !obs.detached {
		t.Fatalf("observer not attached/detached: %+v", obs)
	}
	if trial.Counters["instructions"] != 42 {
		t.Fatalf("expected counters to be recorded, got %v", trial.Counters)
	}
}
