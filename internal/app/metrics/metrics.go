// Package metrics exposes the runtime's Prometheus collectors: world
// lifecycle, automation task execution, and HTTP instrumentation for the
// admin API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CryptoStream-Network/stream_layer/internal/world"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stream_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stream_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stream_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	worldHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stream_layer",
			Subsystem: "world",
			Name:      "health",
			Help:      "Current world health (1 for the active state, 0 otherwise).",
		},
		[]string{"state"},
	)

	worldBootDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stream_layer",
			Subsystem: "world",
			Name:      "boot_duration_seconds",
			Help:      "Duration of world run sequences.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	subsystemFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stream_layer",
			Subsystem: "world",
			Name:      "subsystem_failures_total",
			Help:      "Total subsystem initialization failures.",
		},
		[]string{"component"},
	)

	taskExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stream_layer",
			Subsystem: "automation",
			Name:      "task_runs_total",
			Help:      "Total automation task executions.",
		},
		[]string{"task_id", "success"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stream_layer",
			Subsystem: "automation",
			Name:      "task_run_duration_seconds",
			Help:      "Duration of automation task executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"task_id"},
	)

	taskDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stream_layer",
			Subsystem: "automation",
			Name:      "task_drops_total",
			Help:      "Task firings dropped because the dispatch queue was full.",
		},
		[]string{"task_id"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stream_layer",
			Subsystem: "automation",
			Name:      "queue_depth",
			Help:      "Current depth of the task dispatch queue.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		worldHealth,
		worldBootDuration,
		subsystemFailures,
		taskExecutions,
		taskDuration,
		taskDrops,
		queueDepth,
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

// WorldSink adapts the collectors to the world orchestrator's sink.
type WorldSink struct{}

var healthStates = []world.Health{
	world.HealthStarting,
	world.HealthHealthy,
	world.HealthDegraded,
	world.HealthFailing,
}

func (WorldSink) HealthChanged(h world.Health) {
	for _, state := range healthStates {
		value := 0.0
		if state == h {
			value = 1
		}
		worldHealth.WithLabelValues(string(state)).Set(value)
	}
}

func (WorldSink) BootCompleted(d time.Duration) {
	worldBootDuration.Observe(d.Seconds())
}

func (WorldSink) SubsystemFailed(component string) {
	if component == "" {
		component = "unknown"
	}
	subsystemFailures.WithLabelValues(component).Inc()
}

// AutomationSink adapts the collectors to the automation engine's sink.
type AutomationSink struct{}

func (AutomationSink) TaskExecuted(taskID string, success bool, d time.Duration) {
	if taskID == "" {
		taskID = "unknown"
	}
	if d <= 0 {
		d = time.Millisecond
	}
	result := "false"
	if success {
		result = "true"
	}
	taskExecutions.WithLabelValues(taskID, result).Inc()
	taskDuration.WithLabelValues(taskID).Observe(d.Seconds())
}

func (AutomationSink) TaskDropped(taskID string) {
	if taskID == "" {
		taskID = "unknown"
	}
	taskDrops.WithLabelValues(taskID).Inc()
}

func (AutomationSink) QueueDepth(n int) {
	queueDepth.Set(float64(n))
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

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	// Collapse task routes so task IDs do not blow up label cardinality.
	if len(parts) >= 3 && parts[0] == "api" && parts[2] == "tasks" {
		if len(parts) == 3 {
			return "/api/v1/tasks"
		}
		if len(parts) == 5 && parts[4] == "run" {
			return "/api/v1/tasks/:id/run"
		}
		return "/api/v1/tasks/:id"
	}
	return "/" + strings.Join(parts, "/")
}
