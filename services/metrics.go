package services

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchAttempts prometheus.Histogram
	rounds        *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	latestRound   prometheus.Gauge
	syncPhase     prometheus.Gauge
	evaluations   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lotto", Subsystem: "fetch", Name: "results_total",
			Help: "Round fetches by outcome.",
		}, []string{"outcome"}),
		fetchAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lotto", Subsystem: "fetch", Name: "attempts",
			Help:    "Attempts used per round fetch.",
			Buckets: []float64{1, 2, 3, 5, 8},
		}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lotto", Subsystem: "sync", Name: "rounds_total",
			Help: "Rounds processed by sync cycles, by result.",
		}, []string{"result"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lotto", Subsystem: "sync", Name: "cycles_total",
			Help: "Sync cycles by final phase.",
		}, []string{"phase"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lotto", Subsystem: "sync", Name: "cycle_duration_seconds",
			Help:    "Duration of sync cycles.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		latestRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lotto", Subsystem: "store", Name: "latest_round",
			Help: "Highest stored round.",
		}),
		syncPhase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lotto", Subsystem: "sync", Name: "phase",
			Help: "Current scheduler phase (0 idle, 1 fetching, 2 applying, 3 failed).",
		}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lotto", Subsystem: "tickets", Name: "evaluations_total",
			Help: "Evaluated selections by tier.",
		}, []string{"tier"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lotto", Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lotto", Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
	}

	m.Registry.MustRegister(
		m.fetches, m.fetchAttempts, m.rounds, m.cycles, m.cycleDuration,
		m.latestRound, m.syncPhase, m.evaluations, m.httpRequests, m.httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// ObserveFetch implements ingestion.FetchObserver.
func (m *Metrics) ObserveFetch(outcome string, attempts int) {
	m.fetches.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.fetchAttempts.Observe(float64(attempts))
	}
}

// ObserveRound records one round result: applied, unchanged, revised or failed.
func (m *Metrics) ObserveRound(result string) {
	m.rounds.WithLabelValues(result).Inc()
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(report SyncReport) {
	m.cycles.WithLabelValues(report.Phase.String()).Inc()
	m.cycleDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
}

func (m *Metrics) SetLatestRound(round int) {
	m.latestRound.Set(float64(round))
}

func (m *Metrics) SetPhase(p Phase) {
	m.syncPhase.Set(float64(p))
}

func (m *Metrics) ObserveEvaluation(tier string) {
	m.evaluations.WithLabelValues(tier).Inc()
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware instruments mux routes by their path template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if route == "/metrics" || route == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
