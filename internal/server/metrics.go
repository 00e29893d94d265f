package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	lsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ls_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	lsRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ls_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	lsLedgerEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ls_ledger_events_total",
		Help: "Ledger events dispatched by kind and handler result.",
	}, []string{"kind", "result"})

	lsPollCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ls_poll_cycles_total",
		Help: "Listener poll cycles by outcome.",
	}, []string{"result"})

	lsScoresComputedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ls_scores_computed_total",
		Help: "Credit scores computed via the scoring service.",
	})

	lsHashesAnchoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ls_hashes_anchored_total",
		Help: "Score hashes successfully anchored on the ledger.",
	})

	lsVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ls_verifications_total",
		Help: "On-ledger hash verifications by outcome.",
	}, []string{"result"})

	lsCheckpointTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ls_checkpoint_timestamp_seconds",
		Help: "Unix time of the last listener checkpoint advance.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		lsRequestsTotal.WithLabelValues(method, path, status).Inc()
		lsRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLedgerEvent records one dispatched ledger event. Wired into the
// listener via its metrics callback.
func RecordLedgerEvent(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	lsLedgerEventsTotal.WithLabelValues(kind, result).Inc()
}

// RecordPollCycle records one listener poll cycle outcome.
func RecordPollCycle(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	lsPollCyclesTotal.WithLabelValues(result).Inc()
}

// RecordScoreComputed records a successful score computation.
func RecordScoreComputed() {
	lsScoresComputedTotal.Inc()
}

// RecordHashAnchored records a successful on-ledger anchor.
func RecordHashAnchored() {
	lsHashesAnchoredTotal.Inc()
}

// RecordCheckpointAdvance marks the time of a checkpoint advance so a stalled
// listener shows up as a flat gauge.
func RecordCheckpointAdvance() {
	lsCheckpointTimestamp.SetToCurrentTime()
}

// RecordVerification records a verification outcome.
func RecordVerification(verified bool) {
	result := "match"
	if !verified {
		result = "no_match"
	}
	lsVerificationsTotal.WithLabelValues(result).Inc()
}
