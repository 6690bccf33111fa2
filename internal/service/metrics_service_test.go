package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceCacheOperations(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveCacheWrite(time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheOps.WithLabelValues("get", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheOps.WithLabelValues("get", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheOps.WithLabelValues("set", "ok")))
}

func TestMetricsServiceGeneration(t *testing.T) {
	m := NewMetricsService()
	m.ObserveGeneration(5*time.Millisecond, 2, 1)
	m.ObserveGeneration(5*time.Millisecond, 1, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.relaxedSlots))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unfilledSlots))
}

func TestMetricsServiceQueueDepthAndExposition(t *testing.T) {
	m := NewMetricsService()
	depth := 3
	m.RegisterQueueDepth(func() int { return depth })

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "roster_batch_queue_depth 3")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestMetricsServiceProposalsHeld(t *testing.T) {
	f := newRosterFixture(t)
	f.metrics.RegisterProposalsHeld(f.svc.ProposalsHeld)

	_, err := f.svc.Generate(context.Background(), juneRequest("w1", "w2", "w3"), "user-1")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "roster_proposals_held 1")
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObserveHTTPRequest("GET", "/rosters", 200, time.Millisecond)
		m.RecordCacheOperation(true, time.Millisecond)
		m.ObserveGeneration(time.Millisecond, 1, 1)
		m.RecordSaveConflict("same_day")
		m.RecordBatchJob("completed")
		m.RegisterQueueDepth(func() int { return 0 })
	})

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
