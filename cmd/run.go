package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sweep-bench/internal/config"
	"sweep-bench/internal/database"
	"sweep-bench/internal/logging"
	"sweep-bench/internal/metrics"
	"sweep-bench/internal/output"
	"sweep-bench/internal/sweep"

	"github.com/sirupsen/logrus"
)

type runOptions struct {
	format      string
	outputPath  string
	metricsAddr string
	spoolDir    string
	labels      bool
	logLevelSet bool
}

// SweepBench holds everything one sweep run needs.
type SweepBench struct {
	config        *config.SweepConfig
	configContent string
	checksum      string
	runID         int

	spec       *sweep.Spec
	controller *sweep.Controller
	sink       output.Sink
	dbClient   *database.InfluxDBClient
	metricsSrv *metrics.Server
}

func (sb *SweepBench) cleanup() {
	logger := logging.GetLogger()
	if sb.sink != nil {
		if err := sb.sink.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close result output")
		}
	}
	if sb.metricsSrv != nil {
		sb.metricsSrv.Close()
	}
	if sb.dbClient != nil {
		sb.dbClient.Close()
	}
}

func runSweep(parent context.Context, src *source, opts runOptions, stdout io.Writer) error {
	logger := logging.GetLogger()

	bench := &SweepBench{}
	var err error
	bench.config, bench.configContent, err = src.load()
	if err != nil {
		logger.WithField("config", src.String()).WithError(err).Error("Failed to load configuration")
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := bench.config

	// An explicit --log-level wins over the configuration.
	if !opts.logLevelSet && cfg.Benchmark.LogLevel != "" {
		if err := logging.SetLogLevel(cfg.Benchmark.LogLevel); err != nil {
			logger.WithField("log_level", cfg.Benchmark.LogLevel).WithError(err).Warn("Invalid log level in config, using INFO")
			logging.SetLogLevel("info")
		}
	}

	if opts.format != "" {
		cfg.Output.Format = opts.format
	}
	if opts.outputPath != "" {
		cfg.Output.Path = opts.outputPath
	}
	if opts.spoolDir != "" {
		cfg.Data.SpoolDir = opts.spoolDir
	}
	if opts.labels {
		cfg.Output.Labels = true
	}

	if bench.checksum, err = config.SweepChecksum(cfg); err != nil {
		return err
	}
	if bench.spec, err = cfg.Spec(); err != nil {
		return err
	}
	defer bench.cleanup()

	if err := bench.setup(opts, stdout); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"run_id":   bench.runID,
		"name":     cfg.Benchmark.Name,
		"checksum": bench.checksum,
		"points":   bench.spec.Size(),
	}).Info("Starting sweep")

	report, runErr := bench.controller.Run(ctx)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Sweep interrupted, keeping partial results")
		} else {
			logger.WithError(runErr).Error("Sweep failed")
		}
	}

	bench.finish(report)

	if runErr != nil {
		return fmt.Errorf("sweep failed: %w", runErr)
	}
	logger.Info("Sweep completed successfully")
	return nil
}

func (sb *SweepBench) setup(opts runOptions, stdout io.Writer) error {
	logger := logging.GetLogger()
	cfg := sb.config

	scraper, err := cfg.Scraper()
	if err != nil {
		return err
	}
	hook, err := cfg.BuildHook()
	if err != nil {
		return err
	}

	sb.sink, err = output.Open(cfg.Output.Format, cfg.Output.Path, cfg.Output.Labels, stdout, sb.spec.Names(), sb.spec.Repetitions())
	if err != nil {
		return fmt.Errorf("failed to open result output: %w", err)
	}
	sinks := []sweep.Sink{sb.sink}

	if cfg.Data.DB.Enabled() {
		sb.dbClient, err = database.NewInfluxDBClient(cfg.Data.DB)
		if err != nil {
			return fmt.Errorf("failed to create database client: %w", err)
		}
		lastID, err := sb.dbClient.GetLastRunID(context.Background())
		if err != nil {
			logger.WithError(err).Error("Failed to get last run ID")
			return fmt.Errorf("failed to get last run ID: %w", err)
		}
		sb.runID = lastID + 1
		sb.dbClient.Begin(sb.runID, cfg.Benchmark.Name, sb.checksum)
		sinks = append(sinks, sb.dbClient)
	}

	if opts.metricsAddr != "" {
		recorder := metrics.NewRecorder(cfg.Benchmark.Name)
		sb.metricsSrv = metrics.NewServer(opts.metricsAddr, recorder)
		sb.metricsSrv.Start()
		sinks = append(sinks, recorder)
	}

	controllerOpts := sweep.Options{Hook: hook, Sinks: sinks}
	s, err := cfg.BuildSampler()
	if err != nil {
		return err
	}
	if s != nil {
		controllerOpts.Sampler = s
	}

	sb.controller = sweep.NewController(sb.spec, cfg.BuildRunner(), scraper, controllerOpts)
	return nil
}

// finish exports what the sweep produced. Export failures are logged; the
// results on stdout are already complete.
func (sb *SweepBench) finish(report *sweep.Report) {
	logger := logging.GetLogger()
	if report == nil {
		return
	}
	cfg := sb.config

	metadata := database.CollectSweepMetadata(sb.runID, cfg, sb.checksum, sb.configContent, report, Version)

	if sb.dbClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sb.dbClient.WriteMetadata(ctx, metadata); err != nil {
			logger.WithError(err).Error("Failed to export metadata")
		}
		if n := sb.dbClient.Failed(); n > 0 {
			logger.WithField("lines", n).Warn("Some result lines were not exported")
		}
	}

	if cfg.Data.SpoolDir != "" {
		artifact := database.BuildSpoolArtifact(sb.runID, cfg.Benchmark.Name, sb.checksum, sb.configContent, metadata, report)
		path, err := database.WriteSpoolArtifact(cfg.Data.SpoolDir, artifact)
		if err != nil {
			logger.WithError(err).Error("Failed to write spool artifact")
		} else {
			logger.WithField("path", path).Info("Spool artifact written")
		}
	}

	logger.WithFields(logrus.Fields{
		"run_id":     sb.runID,
		"points":     len(report.Lines),
		"trials":     report.Trials,
		"missing":    report.Missing,
		"terminated": report.Terminated,
		"duration":   report.Finished.Sub(report.Started),
	}).Info("Sweep summary")
}
