package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolverMetrics_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewSolverMetrics(reg)
	require.NoError(t, err)

	m.ObserveRun(Run{Success: true, Requested: 10, Produced: 10, Backtracks: 3, Elapsed: 20 * time.Millisecond})
	m.ObserveRun(Run{Success: true, Requested: 10, Produced: 4, Backtracks: 7, Elapsed: time.Second})
	m.ObserveRun(Run{Success: false, Requested: 5, Produced: 0})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(ResultCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(ResultAborted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.UnderfilledTotal))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.BacktracksTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Duration))
}

func TestSolverMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewSolverMetrics(reg)
	require.NoError(t, err)

	_, err = NewSolverMetrics(reg)
	require.Error(t, err)
}

func TestSolverMetrics_NilReceiver(t *testing.T) {
	var m *SolverMetrics
	assert.NotPanics(t, func() { m.ObserveRun(Run{Success: true}) })
}

func TestServer_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewSolverMetrics(reg)
	require.NoError(t, err)
	m.ObserveRun(Run{Success: true, Requested: 1, Produced: 1})

	srv := httptest.NewServer(NewServer(":0", reg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	count, err := testutil.GatherAndCount(reg, "dynbox_solver_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
