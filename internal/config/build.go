package config

import (
	"fmt"

	"sweep-bench/internal/cacheflush"
	"sweep-bench/internal/collectors"
	"sweep-bench/internal/runner"
	"sweep-bench/internal/sampler"
	"sweep-bench/internal/scrape"
	"sweep-bench/internal/sweep"
)

// Spec builds the typed sweep description.
func (c *SweepConfig) Spec() (*sweep.Spec, error) {
	dims := make([]sweep.Dimension, len(c.Dimensions))
	for i, d := range c.Dimensions {
		if !namePattern.MatchString(d.Name) {
			return nil, fmt.Errorf("dimension name %q is not an identifier", d.Name)
		}
		values := make([]sweep.Value, len(d.Values))
		for j, raw := range d.Values {
			v, err := parseValue(d.Type, raw)
			if err != nil {
				return nil, fmt.Errorf("dimension %q: %w", d.Name, err)
			}
			values[j] = v
		}
		dims[i] = sweep.Dimension{Name: d.Name, Values: values}
	}
	return sweep.NewSpec(dims, c.Benchmark.Repetitions, sweep.WithGroupDepth(c.Benchmark.GroupDepth))
}

func (c *SweepConfig) Scraper() (scrape.Scraper, error) {
	return scrape.New(c.Scrape.Mode, c.Scrape.Pattern)
}

// BuildHook returns nil when no hook is configured.
func (c *SweepConfig) BuildHook() (*sweep.Hook, error) {
	if c.Hook == nil {
		return nil, nil
	}
	when, err := sweep.CompilePredicate(c.Hook.When, c.DimensionNames())
	if err != nil {
		return nil, err
	}
	f := c.Hook.Flush
	flusher, err := cacheflush.New(f.Strategy, f.Command, f.Hosts, f.SSH)
	if err != nil {
		return nil, err
	}
	return &sweep.Hook{When: when, Flusher: flusher, EveryRepetition: c.Hook.EveryRepetition}, nil
}

// BuildSampler returns nil when sampling is disabled.
func (c *SweepConfig) BuildSampler() (*sampler.Sampler, error) {
	s := c.Sampler
	if !s.Enabled {
		return nil, nil
	}

	var source sampler.Source
	switch s.Source {
	case SamplerSourceCommand:
		source = sampler.NewCommandSource(s.Command)
	case SamplerSourceNetDev:
		source = sampler.NewNetDevSource(s.Interface, s.Interval)
	default:
		return nil, fmt.Errorf("unknown sampler source %q", s.Source)
	}

	headerLines := 0
	if s.HeaderLines != nil {
		headerLines = *s.HeaderLines
	}
	return sampler.New(sampler.Config{
		LogFile:     s.LogFile,
		HeaderLines: headerLines,
		InColumn:    s.InColumn,
		OutColumn:   s.OutColumn,
		Grace:       s.Grace,
		Scale:       s.Scale,
	}, source), nil
}

func (c *SweepConfig) BuildRunner() *runner.Runner {
	r := runner.NewRunner(c.Command.Binary, c.Command.Args, c.Command.Env, c.Command.MergeStderr)
	if c.Perf.Enabled {
		r.Observer = collectors.NewPerfObserver()
	}
	return r
}
