// Package metrics exposes Prometheus collectors for the discovery pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourceFetchesTotal         *prometheus.CounterVec
	sourceBytesTotal           *prometheus.CounterVec
	sourceResultsTotal         *prometheus.CounterVec
	candidatesTotal            *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	taskRunsTotal              *prometheus.CounterVec
	taskDurationSeconds        *prometheus.HistogramVec
	activeTasks                prometheus.Gauge
	sweepRemovedTotal          prometheus.Counter
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sourceFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apply4me_source_fetches_total",
				Help: "Total number of source fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		sourceBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apply4me_source_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		sourceResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apply4me_source_results_total",
				Help: "Per-source scrape outcomes, labeled by category and status.",
			},
			[]string{"category", "status"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apply4me_candidates_total",
				Help: "Candidates processed by the synchronizer, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apply4me_notifications_total",
				Help: "Notification deliveries, labeled by kind and result.",
			},
			[]string{"kind", "result"},
		)

		taskRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apply4me_task_runs_total",
				Help: "Total number of task runs, labeled by task and status.",
			},
			[]string{"task", "status"},
		)

		taskDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apply4me_task_duration_seconds",
				Help:    "Histogram of task run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900},
			},
			[]string{"task"},
		)

		activeTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "apply4me_active_tasks",
				Help: "Number of task runs currently executing.",
			},
		)

		sweepRemovedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "apply4me_sweep_removed_total",
				Help: "Duplicate entities removed by the maintenance sweep.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apply4me_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one source fetch.
func ObserveFetch(site string, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	sourceFetchesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		sourceBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveSourceResult records how a source scrape ended.
func ObserveSourceResult(category string, status string) {
	Init()
	sourceResultsTotal.WithLabelValues(category, status).Inc()
}

// ObserveCandidate records the synchronizer outcome for one candidate.
func ObserveCandidate(kind string, outcome string) {
	Init()
	candidatesTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveNotification records one delivery attempt.
func ObserveNotification(kind string, result string) {
	Init()
	notificationsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveTaskRun records a finished task run.
func ObserveTaskRun(task string, status string, duration time.Duration) {
	Init()
	taskRunsTotal.WithLabelValues(task, status).Inc()
	taskDurationSeconds.WithLabelValues(task).Observe(duration.Seconds())
}

// IncActiveTasks increments the active tasks gauge.
func IncActiveTasks() {
	Init()
	activeTasks.Inc()
}

// DecActiveTasks decrements the active tasks gauge.
func DecActiveTasks() {
	Init()
	activeTasks.Dec()
}

// ObserveSweep records rows removed by a maintenance sweep.
func ObserveSweep(removed int) {
	Init()
	sweepRemovedTotal.Add(float64(removed))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
