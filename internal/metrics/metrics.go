package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	snapshotFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windhindcast_snapshot_fetches_total",
			Help: "Total number of grid snapshot requests by result code.",
		},
		[]string{"result"},
	)

	snapshotFetchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "windhindcast_snapshot_fetch_seconds",
			Help:    "Grid snapshot request duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	missingHoursTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "windhindcast_missing_hours_total",
			Help: "Total number of scheduled hours whose snapshot could not be used.",
		},
	)

	cooldownsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "windhindcast_cooldowns_total",
			Help: "Total number of rate-limit cooldown pauses.",
		},
	)

	rowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "windhindcast_rows_total",
			Help: "Total number of output rows assembled.",
		},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windhindcast_runs_total",
			Help: "Total number of hindcast runs by final status.",
		},
		[]string{"status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windhindcast_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "windhindcast_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(snapshotFetchesTotal)
	prometheus.MustRegister(snapshotFetchSeconds)
	prometheus.MustRegister(missingHoursTotal)
	prometheus.MustRegister(cooldownsTotal)
	prometheus.MustRegister(rowsTotal)
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSnapshotFetch records one snapshot request. result is "ok" or an error code.
func ObserveSnapshotFetch(result string, d time.Duration) {
	snapshotFetchesTotal.WithLabelValues(result).Inc()
	snapshotFetchSeconds.Observe(d.Seconds())
}

func IncMissingHour() { missingHoursTotal.Inc() }

func IncCooldown() { cooldownsTotal.Inc() }

func AddRows(n int) { rowsTotal.Add(float64(n)) }

func IncRun(status string) { runsTotal.WithLabelValues(status).Inc() }

// GinMiddleware records request count and duration, labelled by route pattern.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpDurationSeconds.WithLabelValues(path, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
