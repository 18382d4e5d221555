// Package runner executes one benchmark trial as a child process and
// captures what it prints.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"sweep-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

// ExecutionError reports a trial whose binary could not be started or exited
// with a non-zero status. ExitCode is -1 when the process never ran.
type ExecutionError struct {
	Binary   string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("execute %s %s: %v", e.Binary, strings.Join(e.Args, " "), e.Err)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" (exit status %d)", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\nstderr: " + s
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Observer is attached to the trial process right after it starts and
// detached once it has exited.
type Observer interface {
	Attach(pid int) error
	Detach() (map[string]uint64, error)
}

// Trial is the raw outcome of one run.
type Trial struct {
	Args     []string
	Output   string
	Duration time.Duration
	Counters map[string]uint64
}

// Runner launches the benchmarked binary with an argument template.
type Runner struct {
	Binary      string
	Args        []string
	Env         []string
	MergeStderr bool
	Observer    Observer

	logger *logrus.Logger
}

func NewRunner(binary string, args, env []string, mergeStderr bool) *Runner {
	return &Runner{
		Binary:      binary,
		Args:        args,
		Env:         env,
		MergeStderr: mergeStderr,
		logger:      logging.GetLogger(),
	}
}

// Run expands the argument template against params, executes the binary and
// waits for it to exit. On a non-zero exit the partial Trial is returned
// together with an *ExecutionError.
func (r *Runner) Run(ctx context.Context, params Params) (*Trial, error) {
	logger := r.logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	args, err := Expand(r.Args, params)
	if err != nil {
		return nil, &ExecutionError{Binary: r.Binary, Args: r.Args, ExitCode: -1, Err: err}
	}

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if r.MergeStderr {
		cmd.Stderr = &stdout
	} else {
		cmd.Stderr = &stderr
	}

	logger.WithFields(logrus.Fields{
		"binary": r.Binary,
		"args":   strings.Join(args, " "),
	}).Debug("Starting trial")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &ExecutionError{Binary: r.Binary, Args: args, ExitCode: -1, Err: err}
	}

	attached := false
	if r.Observer != nil {
		if err := r.Observer.Attach(cmd.Process.Pid); err != nil {
			logger.WithField("pid", cmd.Process.Pid).WithError(err).Warn("Failed to attach trial observer")
		} else {
			attached = true
		}
	}

	waitErr := cmd.Wait()
	trial := &Trial{
		Args:     args,
		Output:   stdout.String(),
		Duration: time.Since(start),
	}

	if attached {
		counters, err := r.Observer.Detach()
		if err != nil {
			logger.WithError(err).Warn("Failed to read trial observer")
		}
		trial.Counters = counters
	}

	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return trial, &ExecutionError{
			Binary:   r.Binary,
			Args:     args,
			ExitCode: exitCode,
			Stderr:   stderr.String(),
			Err:      waitErr,
		}
	}

	logger.WithFields(logrus.Fields{
		"binary":   r.Binary,
		"duration": trial.Duration,
	}).Debug("Trial finished")

	return trial, nil
}
