package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sweep-bench/internal/logging"
	"sweep-bench/internal/runner"
	"sweep-bench/internal/sampler"
	"sweep-bench/internal/scrape"

	"github.com/sirupsen/logrus"
)

type TrialRunner interface {
	Run(ctx context.Context, params runner.Params) (*runner.Trial, error)
}

type Sampler interface {
	Start(ctx context.Context) error
	Stop() (sampler.Totals, error)
}

// Sink receives every result line as soon as its point is complete.
type Sink interface {
	WriteLine(line *ResultLine) error
	WriteSeparator() error
}

type Options struct {
	Hook    *Hook
	Sampler Sampler
	Sinks   []Sink
}

// Controller runs the sweep. Trials never overlap; the sampler, when set,
// covers exactly one trial at a time.
type Controller struct {
	spec    *Spec
	runner  TrialRunner
	scraper scrape.Scraper
	hook    *Hook
	sampler Sampler
	sinks   []Sink

	logger *logrus.Logger
}

func NewController(spec *Spec, r TrialRunner, s scrape.Scraper, opts Options) *Controller {
	return &Controller{
		spec:    spec,
		runner:  r,
		scraper: s,
		hook:    opts.Hook,
		sampler: opts.Sampler,
		sinks:   opts.Sinks,
		logger:  logging.GetLogger(),
	}
}

// Run visits every point in order. An execution failure ends the current
// point but not the sweep; a scrape failure only loses one value. Run
// returns early with ctx.Err() when the context is cancelled between trials.
func (c *Controller) Run(ctx context.Context) (*Report, error) {
	report := &Report{Started: time.Now()}
	defer func() {
		report.Finished = time.Now()
	}()

	points := c.spec.Points()
	c.logger.WithFields(logrus.Fields{
		"points":      len(points),
		"repetitions": c.spec.Repetitions(),
	}).Info("Starting sweep")

	for i, point := range points {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if i > 0 && c.spec.groupChanged(points[i-1], point) {
			for _, sink := range c.sinks {
				if err := sink.WriteSeparator(); err != nil {
					return report, fmt.Errorf("write separator: %w", err)
				}
			}
		}

		line := c.runPoint(ctx, point)
		report.add(line)

		for _, sink := range c.sinks {
			if err := sink.WriteLine(line); err != nil {
				return report, fmt.Errorf("write result line %d: %w", point.Index(), err)
			}
		}
	}

	c.logger.WithFields(logrus.Fields{
		"points":     len(report.Lines),
		"trials":     report.Trials,
		"missing":    report.Missing,
		"terminated": report.Terminated,
	}).Info("Sweep finished")

	return report, ctx.Err()
}

func (c *Controller) runPoint(ctx context.Context, point Point) *ResultLine {
	logger := c.logger.WithField("point", point.String())
	line := &ResultLine{Point: point}

	for rep := 1; rep <= c.spec.Repetitions(); rep++ {
		if err := ctx.Err(); err != nil {
			line.Terminated = true
			line.Err = err
			break
		}

		if c.hook.due(rep) {
			flushed, err := c.hook.apply(ctx, point)
			if err != nil {
				logger.WithField("repetition", rep).WithError(err).Warn("Pre-trial hook failed")
			} else if flushed {
				logger.WithField("repetition", rep).Debug("Pre-trial hook ran")
			}
		}

		result, err := c.runTrial(ctx, point, rep)
		if err != nil {
			logger.WithField("repetition", rep).WithError(err).Warn("Trial failed, skipping remaining repetitions")
			line.Terminated = true
			line.Err = err
			break
		}
		line.Trials = append(line.Trials, result)
	}

	return line
}

func (c *Controller) runTrial(ctx context.Context, point Point, rep int) (TrialResult, error) {
	logger := c.logger.WithFields(logrus.Fields{
		"point":      point.String(),
		"repetition": rep,
	})
	result := TrialResult{Repetition: rep}

	sampling := false
	if c.sampler != nil {
		if err := c.sampler.Start(ctx); err != nil {
			logger.WithError(err).Warn("Failed to start sampler")
		} else {
			sampling = true
		}
	}

	trial, runErr := c.runner.Run(ctx, point)

	if sampling {
		totals, err := c.sampler.Stop()
		if err != nil {
			logger.WithError(err).Warn("Sampler window lost")
			totals = sampler.Totals{}
		}
		result.Traffic = &totals
	}

	if runErr != nil {
		return result, runErr
	}

	result.Duration = trial.Duration
	result.Counters = trial.Counters

	value, err := c.scraper.Scrape(trial.Output)
	if err != nil {
		var scrapeErr *scrape.ScrapeError
		if !errors.As(err, &scrapeErr) {
			err = &scrape.ScrapeError{Text: trial.Output, Reason: err.Error()}
		}
		logger.WithError(err).Warn("Could not scrape trial output")
		result.Missing = true
		result.Error = err.Error()
		return result, nil
	}

	result.Value = value
	logger.WithField("value", value).Debug("Trial done")
	return result, nil
}
