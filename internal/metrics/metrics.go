// Package metrics exposes sweep progress to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"sweep-bench/internal/logging"
	"sweep-bench/internal/sweep"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sweep_bench"

const (
	OutcomeOK         = "ok"
	OutcomeMissing    = "missing"
	OutcomeTerminated = "terminated"
)

// Recorder is a sweep sink that updates Prometheus collectors as lines
// complete.
type Recorder struct {
	sweepName string

	registry   *prometheus.Registry
	trials     *prometheus.CounterVec
	lastValue  *prometheus.GaugeVec
	pointsDone prometheus.Gauge
}

func NewRecorder(sweepName string) *Recorder {
	r := &Recorder{
		sweepName: sweepName,
		registry:  prometheus.NewRegistry(),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Trials run, by outcome.",
		}, []string{"outcome"}),
		lastValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_value",
			Help:      "Most recent scraped trial value.",
		}, []string{"sweep"}),
		pointsDone: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "points_done",
			Help:      "Sweep points completed so far.",
		}),
	}
	r.registry.MustRegister(r.trials, r.lastValue, r.pointsDone)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) WriteLine(line *sweep.ResultLine) error {
	for _, t := range line.Trials {
		if t.Missing {
			r.trials.WithLabelValues(OutcomeMissing).Inc()
			continue
		}
		r.trials.WithLabelValues(OutcomeOK).Inc()
		r.lastValue.WithLabelValues(r.sweepName).Set(t.Value)
	}
	if line.Terminated {
		r.trials.WithLabelValues(OutcomeTerminated).Inc()
	}
	r.pointsDone.Inc()
	return nil
}

func (r *Recorder) WriteSeparator() error {
	return nil
}

// Server serves /metrics for a recorder until Shutdown.
type Server struct {
	srv *http.Server
}

func NewServer(listenAddr string, r *Recorder) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.Registry(), promhttp.HandlerOpts{}))
	return &Server{srv: &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}}
}

// Start listens in the background. Listen errors are logged, not returned.
func (s *Server) Start() {
	logger := logging.GetLogger()
	logger.WithField("address", s.srv.Addr).Info("Starting Prometheus metrics server")
	go func() {
		err := s.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Prometheus HTTP server ListenAndServe error")
		}
	}()
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Close() error {
	return s.srv.Close()
}
