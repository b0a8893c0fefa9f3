package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/weather-sync-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Weather API call rate by status label. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Weather API latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Weather API failures by category (see client.CategorizeError).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Responses the weather API answered without data (fetch returned nil).
	WeatherAPINoDataTotal prometheus.Counter

	// Offline cache operations by op (get, save) and result (hit, miss, ok, error).
	OfflineCacheOperationsTotal *prometheus.CounterVec

	// Offline cache operation latency. Only meaningful for the memcached backend.
	OfflineCacheOperationDuration *prometheus.HistogramVec

	// Finished sync flows by flow (initialize, select, refresh) and outcome.
	SyncFlowsTotal *prometheus.CounterVec

	// Sync flow wall time from trigger to last state write.
	SyncFlowDuration *prometheus.HistogramVec

	// Published state transitions by status. Success with source=cache marks provisional values.
	SyncStateTransitionsTotal *prometheus.CounterVec

	// Selection flows cancelled by a newer selection.
	SyncFlowsSupersededTotal prometheus.Counter

	// Fetches that joined an identical in-flight fetch instead of calling upstream.
	FetchCoalescedTotal prometheus.Counter

	// Location provider lookups by op (current, suggestions) and result.
	LocationLookupsTotal *prometheus.CounterVec

	// Suggestions returned per search.
	LocationSuggestionsReturned prometheus.Histogram

	// Circuit breaker state: 0=closed, 1=open, 2=half_open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions by from/to state.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Rate limit denials on command endpoints.
	RateLimitDeniedTotal prometheus.Counter

	// Cache prewarm runs, failures and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	outcomeGaugesOnce sync.Once
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
			Help:    "HTTP request latency in seconds (per request)",
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
			Help: "Total number of weather API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Weather API failures by error category",
		},
		[]string{"category"},
	)
	WeatherAPINoDataTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiNoDataTotal",
			Help: "Weather API responses that carried no data",
		},
	)
	OfflineCacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlineCacheOperationsTotal",
			Help: "Offline cache operations by op and result",
		},
		[]string{"op", "result"},
	)
	OfflineCacheOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offlineCacheOperationDurationSeconds",
			Help:    "Offline cache operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"op"},
	)
	SyncFlowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncFlowsTotal",
			Help: "Finished sync flows by flow and outcome",
		},
		[]string{"flow", "outcome"},
	)
	SyncFlowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncFlowDurationSeconds",
			Help:    "Sync flow duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"flow"},
	)
	SyncStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncStateTransitionsTotal",
			Help: "Published sync state values by status and source",
		},
		[]string{"status", "source"},
	)
	SyncFlowsSupersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "syncFlowsSupersededTotal",
			Help: "Selection flows cancelled by a newer selection",
		},
	)
	FetchCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fetchCoalescedTotal",
			Help: "Fetches served by joining an identical in-flight fetch",
		},
	)
	LocationLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationLookupsTotal",
			Help: "Location provider lookups by op and result",
		},
		[]string{"op", "result"},
	)
	LocationSuggestionsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "locationSuggestionsReturned",
			Help:    "Number of suggestions returned per search",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
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
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache prewarm runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache prewarm runs with at least one failed location",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache prewarm duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal, WeatherAPINoDataTotal,
		OfflineCacheOperationsTotal, OfflineCacheOperationDuration,
		SyncFlowsTotal, SyncFlowDuration, SyncStateTransitionsTotal, SyncFlowsSupersededTotal,
		FetchCoalescedTotal,
		LocationLookupsTotal, LocationSuggestionsReturned,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		RateLimitDeniedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
	)
}

// RegisterOutcomeGauges registers sliding-window gauges over recorded flow outcomes and denials.
// Call from main after config load with the degraded window.
func RegisterOutcomeGauges(window time.Duration) {
	outcomeGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "syncErrorsInWindow",
					Help: "Failed sync flows in the sliding window",
				},
				func() float64 { return float64(traffic.Count(window, traffic.OutcomeError)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the sliding window",
				},
				func() float64 { return float64(traffic.Count(window, traffic.OutcomeDenied)) },
			),
		)
	})
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// RecordSyncFlow records a finished flow's outcome and duration.
func RecordSyncFlow(flow string, outcome traffic.Outcome, d time.Duration) {
	traffic.Record(outcome)
	SyncFlowsTotal.WithLabelValues(flow, outcome.String()).Inc()
	SyncFlowDuration.WithLabelValues(flow).Observe(d.Seconds())
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
