package services

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observers(t *testing.T) {
	m := NewMetrics()

	m.ObserveFetch("ok", 1)
	m.ObserveFetch("ok", 2)
	m.ObserveFetch("unavailable", 3)
	m.ObserveRound("applied")
	m.SetLatestRound(1100)
	m.SetPhase(PhaseFailed)
	m.ObserveCycle(SyncReport{Phase: PhaseIdle, StartedAt: time.Now(), FinishedAt: time.Now()})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rounds.WithLabelValues("applied")))
	assert.Equal(t, 1100.0, testutil.ToFloat64(m.latestRound))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.syncPhase))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("idle")))
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	m := NewMetrics()
	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.HandleFunc("/api/draws/{round}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/draws/5", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/draws/{round}", "404")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "lotto_http_requests_total")
}
