package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. Lookup routes include the upstream call.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeather call rate by status label. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// OpenWeather latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts. Zero unless retries are enabled in config.
	WeatherAPIRetriesTotal prometheus.Counter

	// Session lookups by kind (search, refresh, select) and outcome (success or error category).
	LookupsTotal *prometheus.CounterVec

	// Lookups currently outstanding, including the minimum-visible loading window.
	LookupsOutstanding prometheus.Gauge

	// Recent-city list mutations by operation (record, delete, clear).
	RecentMutationsTotal *prometheus.CounterVec

	// Current length of the recent-city list.
	RecentListSize prometheus.Gauge

	// Persistence failures by backend and operation.
	StorageErrorsTotal *prometheus.CounterVec

	// Scheduled refresh runs by outcome (success, error, skipped).
	RefreshRunsTotal *prometheus.CounterVec

	// Circuit breaker state per component: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Rate limit denials on lookup routes.
	RateLimitDeniedTotal prometheus.Counter

	breakerMu sync.Mutex
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeather API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeather API latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
	)
	LookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookupsTotal",
			Help: "Session weather lookups by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	LookupsOutstanding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lookupsOutstanding",
			Help: "Lookups in flight or inside the minimum loading window",
		},
	)
	RecentMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recentMutationsTotal",
			Help: "Recent-city list mutations by operation",
		},
		[]string{"op"},
	)
	RecentListSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recentListSize",
			Help: "Current number of entries in the recent-city list",
		},
	)
	StorageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storageErrorsTotal",
			Help: "Persistence failures by backend and operation",
		},
		[]string{"backend", "op"},
	)
	RefreshRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshRunsTotal",
			Help: "Scheduled refresh runs by outcome",
		},
		[]string{"outcome"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		LookupsTotal, LookupsOutstanding,
		RecentMutationsTotal, RecentListSize,
		StorageErrorsTotal, RefreshRunsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		RateLimitDeniedTotal,
	)
}

// RecordBreakerTransition updates breaker metrics. An empty from records the initial state only.
func RecordBreakerTransition(component, from, to string) {
	breakerMu.Lock()
	defer breakerMu.Unlock()
	if from != "" {
		CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	}
	CircuitBreakerState.WithLabelValues(component).Set(breakerStateValue(to))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
