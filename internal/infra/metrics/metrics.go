// Package metrics provides Prometheus collectors for solver runs and the
// HTTP exporter serving them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"
)

const namespace = "dynbox"

// Result labels of dynbox_solver_runs_total.
const (
	ResultCompleted = "completed"
	ResultAborted   = "aborted"
)

// Run summarises one finished solver run.
type Run struct {
	Success    bool
	Requested  int
	Produced   int
	Backtracks int
	Elapsed    time.Duration
}

// SolverMetrics holds the solver collectors.
type SolverMetrics struct {
	RunsTotal        *prometheus.CounterVec
	Duration         prometheus.Histogram
	SolutionTracks   prometheus.Histogram
	UnderfilledTotal prometheus.Counter
	BacktracksTotal  prometheus.Counter
}

// NewSolverMetrics creates the collectors and registers them with reg.
func NewSolverMetrics(reg prometheus.Registerer) (*SolverMetrics, error) {
	m := &SolverMetrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solver_runs_total",
				Help:      "Total number of finished solver runs",
			},
			[]string{"result"},
		),
		Duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solver_duration_seconds",
				Help:      "Search time of solver runs",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		SolutionTracks: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solver_solution_tracks",
				Help:      "Number of tracks produced per run",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
		),
		UnderfilledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solver_underfilled_total",
				Help:      "Total number of runs that produced fewer tracks than requested",
			},
		),
		BacktracksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solver_backtracks_total",
				Help:      "Total number of backtracking steps",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.RunsTotal, m.Duration, m.SolutionTracks, m.UnderfilledTotal, m.BacktracksTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register solver metrics")
		}
	}
	return m, nil
}

// ObserveRun records a finished run. Safe on a nil receiver.
func (m *SolverMetrics) ObserveRun(r Run) {
	if m == nil {
		return
	}
	result := ResultCompleted
	if !r.Success {
		result = ResultAborted
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	m.Duration.Observe(r.Elapsed.Seconds())
	m.SolutionTracks.Observe(float64(r.Produced))
	m.BacktracksTotal.Add(float64(r.Backtracks))
	if r.Produced < r.Requested {
		m.UnderfilledTotal.Inc()
	}
}

// Server exposes /metrics and /healthz.
type Server struct {
	server *http.Server
}

// NewServer creates an exporter for the collectors gathered by g.
func NewServer(addr string, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"dynbox"}`))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the exporter's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		zlog.Info().Msgf("metrics exporter listening: addr=%s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error().Msgf("metrics exporter stopped: %v", err)
		}
	}()
}

// Shutdown stops the exporter.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
