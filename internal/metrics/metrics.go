// Package metrics exposes Prometheus metrics for the HTTP API and the
// background task pipeline. A single Collector owns the registry; the
// scheduler and the router each receive the slice of it they record into.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alrt/internal/types"
)

// Collector owns the Prometheus registry and every metric the process
// exports.
type Collector struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	taskDuration *prometheus.HistogramVec
	taskTotal    *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
}

// NewCollector constructs a Collector with all metrics registered.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alrt",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alrt",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	taskDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alrt",
		Subsystem: "scheduler",
		Name:      "task_duration_seconds",
		Help:      "Processing time per background task, including retries.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"kind", "outcome"})

	taskTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alrt",
		Subsystem: "scheduler",
		Name:      "tasks_total",
		Help:      "Total number of background tasks processed.",
	}, []string{"kind", "outcome"})

	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alrt",
		Subsystem: "scheduler",
		Name:      "queue_depth",
		Help:      "Number of tasks currently waiting per queue.",
	}, []string{"kind"})

	for _, c := range []prometheus.Collector{
		requestDuration, requestTotal, taskDuration, taskTotal, queueDepth,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		taskDuration:    taskDuration,
		taskTotal:       taskTotal,
		queueDepth:      queueDepth,
	}, nil
}

// Handler returns the /metrics scrape handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveTask records one processed background task.
func (c *Collector) ObserveTask(kind types.TaskKind, outcome string, d time.Duration) {
	c.taskTotal.WithLabelValues(string(kind), outcome).Inc()
	c.taskDuration.WithLabelValues(string(kind), outcome).Observe(d.Seconds())
}

// SetQueueDepth records the current depth of one task queue.
func (c *Collector) SetQueueDepth(kind types.TaskKind, depth int) {
	c.queueDepth.WithLabelValues(string(kind)).Set(float64(depth))
}

// InstrumentHandler wraps the provided handler to record HTTP metrics. The
// path label uses the chi route pattern when available so per-ID URLs do not
// explode the cardinality.
func (c *Collector) InstrumentHandler(routePattern func(r *http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if routePattern != nil {
			if p := routePattern(r); p != "" {
				path = p
			}
		}
		status := strconv.Itoa(rw.status)

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
