// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "video_catalog"

// Provider outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
	OutcomeCacheHit = "cache_hit"
)

var (
	// ProviderRequests counts upstream lookups by provider and outcome.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Upstream provider calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	// PipelineStageDuration observes each high-fidelity pipeline stage.
	PipelineStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transcription_stage_duration_seconds",
		Help:      "Duration of high-fidelity transcription stages.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
	}, []string{"stage", "outcome"})

	// TranscriptionJobs counts finished background jobs by final status.
	TranscriptionJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcription_jobs_total",
		Help:      "Background transcription jobs by final status.",
	}, []string{"status"})

	// HTTPRequests counts API requests.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes API latency.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveStage records how long a pipeline stage took and whether it failed.
func ObserveStage(stage string, started time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	PipelineStageDuration.WithLabelValues(stage, outcome).Observe(time.Since(started).Seconds())
}

// GinMiddleware records request counts and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
