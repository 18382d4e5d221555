package database

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"sweep-bench/internal/config"
	"sweep-bench/internal/logging"
	"sweep-bench/internal/sweep"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/sirupsen/logrus"
)

const (
	trialsMeasurement = "sweep_trials"
	metaMeasurement   = "sweep_meta"
)

// SweepMetadata describes one sweep run.
type SweepMetadata struct {
	RunID           int    `json:"run_id"`
	SweepName       string `json:"sweep_name"`
	Description     string `json:"description"`
	Checksum        string `json:"checksum"`
	DurationSeconds int64  `json:"duration_seconds"`
	Started         string `json:"started"`  // RFC3339
	Finished        string `json:"finished"` // RFC3339
	Dimensions      string `json:"dimensions"`
	Repetitions     int    `json:"repetitions"`
	TotalPoints     int    `json:"total_points"`
	TotalTrials     int    `json:"total_trials"`
	MissingValues   int    `json:"missing_values"`
	TerminatedLines int    `json:"terminated_lines"`
	DriverVersion   string `json:"driver_version"`
	Hostname        string `json:"hostname"`
	OSInfo          string `json:"os_info"`
	KernelVersion   string `json:"kernel_version"`
	CPUVendor       string `json:"cpu_vendor"`
	CPUModel        string `json:"cpu_model"`
	CPUThreads      int    `json:"cpu_threads"`
	ConfigFile      string `json:"config_file"`
}

type SystemInfo struct {
	Hostname      string
	OSInfo        string
	KernelVersion string
	CPUVendor     string
	CPUModel      string
	CPUThreads    int
}

func collectSystemInfo() *SystemInfo {
	info := &SystemInfo{
		Hostname:      "unknown",
		OSInfo:        runtime.GOOS + "/" + runtime.GOARCH,
		KernelVersion: "unknown",
		CPUVendor:     "unknown",
		CPUModel:      "unknown",
		CPUThreads:    runtime.NumCPU(),
	}
	logger := logging.GetLogger()

	if h, err := host.Info(); err == nil {
		if h.Hostname != "" {
			info.Hostname = h.Hostname
		}
		if h.KernelVersion != "" {
			info.KernelVersion = h.KernelVersion
		}
		if h.Platform != "" {
			info.OSInfo = strings.TrimSpace(h.Platform + " " + h.PlatformVersion + " " + runtime.GOARCH)
		}
	} else {
		logger.WithError(err).Debug("Failed to read host info")
		if hostname, err := os.Hostname(); err == nil {
			info.Hostname = hostname
		}
	}

	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
		if cpus[0].VendorID != "" {
			info.CPUVendor = cpus[0].VendorID
		}
		if cpus[0].ModelName != "" {
			info.CPUModel = cpus[0].ModelName
		}
	} else if err != nil {
		logger.WithError(err).Debug("Failed to read CPU info")
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		info.CPUThreads = n
	}
	return info
}

// CollectSweepMetadata summarises a finished (or interrupted) sweep.
func CollectSweepMetadata(runID int, cfg *config.SweepConfig, checksum, configContent string, report *sweep.Report, driverVersion string) *SweepMetadata {
	sys := collectSystemInfo()

	names := make([]string, len(cfg.Dimensions))
	for i, d := range cfg.Dimensions {
		names[i] = d.Name
	}

	meta := &SweepMetadata{
		RunID:         runID,
		SweepName:     cfg.Benchmark.Name,
		Description:   cfg.Benchmark.Description,
		Checksum:      checksum,
		Dimensions:    strings.Join(names, ","),
		Repetitions:   cfg.Benchmark.Repetitions,
		DriverVersion: driverVersion,
		Hostname:      sys.Hostname,
		OSInfo:        sys.OSInfo,
		KernelVersion: sys.KernelVersion,
		CPUVendor:     sys.CPUVendor,
		CPUModel:      sys.CPUModel,
		CPUThreads:    sys.CPUThreads,
		ConfigFile:    configContent,
	}
	if report != nil {
		meta.DurationSeconds = int64(report.Finished.Sub(report.Started).Seconds())
		meta.Started = report.Started.Format(time.RFC3339)
		meta.Finished = report.Finished.Format(time.RFC3339)
		meta.TotalPoints = len(report.Lines)
		meta.TotalTrials = report.Trials
		meta.MissingValues = report.Missing
		meta.TerminatedLines = report.Terminated
	}
	return meta
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxDBClient exports trials as they complete. It is a sweep sink that
// never fails the sweep: write errors are logged and counted.
type InfluxDBClient struct {
	client   influxdb2.Client
	writeAPI pointWriter
	queryAPI api.QueryAPI
	bucket   string
	org      string

	runID     int
	sweepName string
	checksum  string
	failed    int

	logger *logrus.Logger
}

func NewInfluxDBClient(cfg config.DatabaseConfig) (*InfluxDBClient, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(cfg.Host, cfg.Password)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", cfg.Host).WithError(err).Error("Failed to connect to InfluxDB")
		client.Close()
		return nil, err
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		logger.WithFields(logrus.Fields{
			"host":    cfg.Host,
			"status":  health.Status,
			"message": msg,
		}).Error("InfluxDB health check failed")
		client.Close()
		return nil, fmt.Errorf("influxdb health check: status %s", health.Status)
	}

	logger.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"bucket": cfg.Name,
		"org":    cfg.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxDBClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Name),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Name,
		org:      cfg.Org,
		logger:   logger,
	}, nil
}

func (idb *InfluxDBClient) GetLastRunID(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: -90d)
		|> filter(fn: (r) => r._measurement == "%s")
		|> distinct(column: "run_id")
		|> map(fn: (r) => ({_value: int(v: r.run_id)}))
		|> max()
		|> yield(name: "max_run_id")
	`, idb.bucket, metaMeasurement)

	result, err := idb.queryAPI.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to query last run ID: %w", err)
	}
	defer result.Close()

	maxID := 0
	for result.Next() {
		if id, ok := result.Record().Value().(int64); ok && int(id) > maxID {
			maxID = int(id)
		}
	}
	if result.Err() != nil {
		return 0, fmt.Errorf("error reading query results: %w", result.Err())
	}
	return maxID, nil
}

// Begin tags every following trial point with the run.
func (idb *InfluxDBClient) Begin(runID int, sweepName, checksum string) {
	idb.runID = runID
	idb.sweepName = sweepName
	idb.checksum = checksum
}

func (idb *InfluxDBClient) WriteLine(line *sweep.ResultLine) error {
	points := trialPoints(idb.runID, idb.sweepName, idb.checksum, line, time.Now())
	if len(points) == 0 {
		return nil
	}
	if err := idb.writeAPI.WritePoint(context.Background(), points...); err != nil {
		idb.failed++
		idb.logger.WithField("point", line.Point.String()).WithError(err).Warn("Failed to export trials")
	}
	return nil
}

func (idb *InfluxDBClient) WriteSeparator() error {
	return nil
}

// Failed is the number of lines whose export failed.
func (idb *InfluxDBClient) Failed() int {
	return idb.failed
}

func trialPoints(runID int, sweepName, checksum string, line *sweep.ResultLine, ts time.Time) []*write.Point {
	tags := map[string]string{
		"run_id":      strconv.Itoa(runID),
		"sweep":       sweepName,
		"checksum":    checksum,
		"point_index": strconv.Itoa(line.Point.Index()),
	}
	for i := 0; i < line.Point.Len(); i++ {
		tags["dim_"+line.Point.Name(i)] = line.Point.Value(i).String()
	}

	points := make([]*write.Point, 0, len(line.Trials))
	for _, t := range line.Trials {
		fields := map[string]interface{}{
			"repetition":  t.Repetition,
			"missing":     t.Missing,
			"duration_ms": t.Duration.Milliseconds(),
			"terminated":  line.Terminated,
		}
		if !t.Missing {
			fields["value"] = t.Value
		}
		if t.Traffic != nil {
			fields["traffic_in"] = t.Traffic.In
			fields["traffic_out"] = t.Traffic.Out
		}
		for name, v := range t.Counters {
			fields["perf_"+name] = v
		}
		// Distinct timestamps keep repetitions of one point from overwriting each other.
		points = append(points, influxdb2.NewPoint(trialsMeasurement, tags, fields, ts.Add(time.Duration(t.Repetition)*time.Microsecond)))
	}
	return points
}

func metadataPoint(meta *SweepMetadata, ts time.Time) *write.Point {
	return influxdb2.NewPoint(metaMeasurement,
		map[string]string{
			"run_id": strconv.Itoa(meta.RunID),
			"sweep":  meta.SweepName,
		},
		map[string]interface{}{
			"description":      meta.Description,
			"checksum":         meta.Checksum,
			"duration_seconds": meta.DurationSeconds,
			"started":          meta.Started,
			"finished":         meta.Finished,
			"dimensions":       meta.Dimensions,
			"repetitions":      meta.Repetitions,
			"total_points":     meta.TotalPoints,
			"total_trials":     meta.TotalTrials,
			"missing_values":   meta.MissingValues,
			"terminated_lines": meta.TerminatedLines,
			"driver_version":   meta.DriverVersion,
			"hostname":         meta.Hostname,
			"os_info":          meta.OSInfo,
			"kernel_version":   meta.KernelVersion,
			"cpu_vendor":       meta.CPUVendor,
			"cpu_model":        meta.CPUModel,
			"cpu_threads":      meta.CPUThreads,
			"config_file":      meta.ConfigFile,
		},
		ts)
}

func (idb *InfluxDBClient) WriteMetadata(ctx context.Context, meta *SweepMetadata) error {
	if err := idb.writeAPI.WritePoint(ctx, metadataPoint(meta, time.Now())); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (idb *InfluxDBClient) Close() {
	if idb.client != nil {
		idb.client.Close()
	}
}
