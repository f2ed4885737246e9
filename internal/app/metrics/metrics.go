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
			Namespace: "inkpress",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inkpress",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inkpress",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	reconcilePasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inkpress",
			Subsystem: "publisher",
			Name:      "reconcile_passes_total",
			Help:      "Total number of reconciliation passes executed.",
		},
	)

	chaptersPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inkpress",
			Subsystem: "publisher",
			Name:      "chapters_published_total",
			Help:      "Total number of scheduled chapters transitioned to published.",
		},
	)

	reconcileItemErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inkpress",
			Subsystem: "publisher",
			Name:      "item_errors_total",
			Help:      "Total number of per-chapter failures during reconciliation.",
		},
	)

	reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "inkpress",
			Subsystem: "publisher",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	registrationsThrottled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inkpress",
			Subsystem: "users",
			Name:      "registrations_throttled_total",
			Help:      "Total number of registration attempts rejected by the rate limiter.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		reconcilePasses,
		chaptersPublished,
		reconcileItemErrors,
		reconcileDuration,
		registrationsThrottled,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordReconcilePass records the outcome of one reconciliation pass.
func RecordReconcilePass(published, itemErrors int, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	reconcilePasses.Inc()
	chaptersPublished.Add(float64(published))
	reconcileItemErrors.Add(float64(itemErrors))
	reconcileDuration.Observe(duration.Seconds())
}

// RecordRegistrationThrottled counts a registration rejected by rate limiting.
func RecordRegistrationThrottled() {
	registrationsThrottled.Inc()
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

// canonicalPath collapses resource identifiers so the path label stays
// low-cardinality.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "stories", "chapters", "users", "comments":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		if len(parts) == 2 {
			return "/" + parts[0] + "/:id"
		}
		return "/" + parts[0] + "/:id/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
