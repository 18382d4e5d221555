// Package sampler records auxiliary counters (network throughput) in the
// background while a trial runs and reduces them to totals afterwards.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"sweep-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

// SamplerError reports a sampling window that could not be started, stopped
// or read back.
type SamplerError struct {
	Op  string
	Err error
}

func (e *SamplerError) Error() string {
	return fmt.Sprintf("sampler %s: %v", e.Op, e.Err)
}

func (e *SamplerError) Unwrap() error {
	return e.Err
}

// Totals are the summed inbound and outbound counters of one window.
type Totals struct {
	In  float64 `json:"in"`
	Out float64 `json:"out"`
}

// Source produces the log. Start must not block.
type Source interface {
	Start(ctx context.Context, log io.Writer) error
	Stop() error
}

type Config struct {
	LogFile     string
	HeaderLines int
	InColumn    int
	OutColumn   int
	Grace       time.Duration
	// Scale is applied once to the summed totals; zero means 1.
	Scale float64
}

type state int

const (
	idle state = iota
	sampling
)

// Sampler moves between idle and sampling. Stop on an idle sampler is a
// no-op returning zero totals.
type Sampler struct {
	cfg    Config
	source Source

	mu    sync.Mutex
	state state
	log   *os.File

	logger *logrus.Logger
}

func New(cfg Config, source Source) *Sampler {
	return &Sampler{
		cfg:    cfg,
		source: source,
		logger: logging.GetLogger(),
	}
}

// Start truncates the log file and launches the source.
func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == sampling {
		return &SamplerError{Op: "start", Err: errors.New("already sampling")}
	}

	f, err := os.Create(s.cfg.LogFile)
	if err != nil {
		return &SamplerError{Op: "start", Err: err}
	}
	if err := s.source.Start(ctx, f); err != nil {
		f.Close()
		return &SamplerError{Op: "start", Err: err}
	}

	s.log = f
	s.state = sampling
	s.logger.WithField("log_file", s.cfg.LogFile).Debug("Sampler started")
	return nil
}

// Stop waits the grace period so one more sample lands in the log, stops the
// source and sums the logged columns.
func (s *Sampler) Stop() (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == idle {
		return Totals{}, nil
	}

	if s.cfg.Grace > 0 {
		time.Sleep(s.cfg.Grace)
	}

	stopErr := s.source.Stop()
	closeErr := s.log.Close()
	s.log = nil
	s.state = idle

	if stopErr != nil {
		return Totals{}, &SamplerError{Op: "stop", Err: stopErr}
	}
	if closeErr != nil {
		return Totals{}, &SamplerError{Op: "stop", Err: closeErr}
	}

	f, err := os.Open(s.cfg.LogFile)
	if err != nil {
		return Totals{}, &SamplerError{Op: "read", Err: err}
	}
	defer f.Close()

	totals, err := SumColumns(f, s.cfg.HeaderLines, s.cfg.InColumn, s.cfg.OutColumn)
	if err != nil {
		return Totals{}, &SamplerError{Op: "read", Err: err}
	}

	scale := s.cfg.Scale
	if scale == 0 {
		scale = 1
	}
	totals.In *= scale
	totals.Out *= scale

	s.logger.WithFields(logrus.Fields{
		"in":  totals.In,
		"out": totals.Out,
	}).Debug("Sampler stopped")
	return totals, nil
}
