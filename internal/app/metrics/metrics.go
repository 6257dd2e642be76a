package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "charity",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "charity",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "charity",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	notificationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "charity",
			Subsystem: "notifications",
			Name:      "events_total",
			Help:      "Total number of accepted notification events.",
		},
		[]string{"category"},
	)

	counterClears = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "charity",
			Subsystem: "notifications",
			Name:      "clears_total",
			Help:      "Total number of unread-counter clears.",
		},
	)

	balanceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "charity",
			Subsystem: "wallet",
			Name:      "balance_fetches_total",
			Help:      "Total number of wallet balance fetch attempts.",
		},
		[]string{"result"},
	)

	balanceCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "charity",
			Subsystem: "wallet",
			Name:      "balance_cache_hits_total",
			Help:      "Refetch calls answered from the TTL cache.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		notificationEvents,
		counterClears,
		balanceFetches,
		balanceCacheHits,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordNotificationEvent records an accepted change-feed event.
func RecordNotificationEvent(category string) {
	if category == "" {
		category = "unknown"
	}
	notificationEvents.WithLabelValues(category).Inc()
}

// RecordCounterClear records an unread-counter clear.
func RecordCounterClear() {
	counterClears.Inc()
}

// RecordBalanceFetch records the outcome of a balance fetch attempt.
func RecordBalanceFetch(result string) {
	if result == "" {
		result = "unknown"
	}
	balanceFetches.WithLabelValues(result).Inc()
}

// RecordBalanceCacheHit records a refetch satisfied by the TTL cache.
func RecordBalanceCacheHit() {
	balanceCacheHits.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses identifier segments so metric cardinality stays
// bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 1 {
		return "/" + parts[0]
	}
	switch parts[0] {
	case "notifications", "preferences", "users":
		return "/" + parts[0] + "/:id"
	}
	return "/" + parts[0] + "/" + parts[1]
}
