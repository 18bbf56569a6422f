package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP-surface and domain-event prometheus instrumentation
// for a fedtrustd server. It is distinct from pkg/facade's own metrics,
// which instrument the Façade's Go API directly; this set instruments the
// gin router and the operations handlers report back into it.
type Metrics struct {
	ResolveDuration  prometheus.Histogram
	ResolveTotal     prometheus.Counter
	ResolveErrors    prometheus.Counter
	TrustAnchorCount prometheus.Gauge

	ChainVerificationDuration prometheus.Histogram

	APIRequestsTotal    *prometheus.CounterVec
	APIRequestDuration  *prometheus.HistogramVec
	APIRequestsInFlight prometheus.Gauge

	ErrorsTotal *prometheus.CounterVec

	TrustMarkValidationTotal    *prometheus.CounterVec
	TrustMarkValidationDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics constructs a Metrics instance registered against its own
// private registry, ready to be scraped via RegisterMetricsEndpoint.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fedtrust_pipeline_execution_duration_seconds",
			Help:    "Duration of trust chain resolution runs.",
			Buckets: prometheus.DefBuckets,
		}),
		ResolveTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fedtrust_pipeline_execution_total",
			Help: "Total number of trust chain resolution runs.",
		}),
		ResolveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fedtrust_pipeline_execution_errors_total",
			Help: "Total number of failed trust chain resolution runs.",
		}),
		TrustAnchorCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedtrust_tsl_count",
			Help: "Number of configured trust anchors as of the last resolution run.",
		}),
		ChainVerificationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fedtrust_tsl_processing_duration_seconds",
			Help:    "Duration of individual trust chain verification passes.",
			Buckets: prometheus.DefBuckets,
		}),
		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedtrust_api_requests_total",
			Help: "Total number of API requests, labeled by method, endpoint and status.",
		}, []string{"method", "endpoint", "status"}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fedtrust_api_request_duration_seconds",
			Help:    "API request latency, labeled by method and endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		APIRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedtrust_api_requests_in_flight",
			Help: "Number of API requests currently being served.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedtrust_errors_total",
			Help: "Total number of errors, labeled by type and operation.",
		}, []string{"error_type", "operation"}),
		TrustMarkValidationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedtrust_cert_validation_total",
			Help: "Total number of AuthZEN trust evaluations, labeled by outcome.",
		}, []string{"outcome"}),
		TrustMarkValidationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fedtrust_cert_validation_duration_seconds",
			Help:    "Duration of AuthZEN trust evaluations.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.ResolveDuration, m.ResolveTotal, m.ResolveErrors, m.TrustAnchorCount,
		m.ChainVerificationDuration,
		m.APIRequestsTotal, m.APIRequestDuration, m.APIRequestsInFlight,
		m.ErrorsTotal,
		m.TrustMarkValidationTotal, m.TrustMarkValidationDuration,
	)
	return m
}

// MetricsMiddleware returns a gin middleware that records APIRequests* for
// every request except the metrics endpoint itself.
func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		m.APIRequestsInFlight.Inc()
		defer m.APIRequestsInFlight.Dec()

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}
		status := strconv.Itoa(c.Writer.Status())

		m.APIRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		m.APIRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration.Seconds())
	}
}

// RecordPipelineExecution records the outcome of a trust chain resolution
// run: its duration, the number of trust anchors configured at the time,
// and any error encountered.
func (m *Metrics) RecordPipelineExecution(duration time.Duration, anchorCount int, err error) {
	m.ResolveDuration.Observe(duration.Seconds())
	m.ResolveTotal.Inc()
	m.TrustAnchorCount.Set(float64(anchorCount))
	if err != nil {
		m.ResolveErrors.Inc()
	}
}

// RecordTSLProcessing records the duration of a single chain verification pass.
func (m *Metrics) RecordTSLProcessing(duration time.Duration) {
	m.ChainVerificationDuration.Observe(duration.Seconds())
}

// RecordError records an error occurrence labeled by its type and the
// operation in which it occurred.
func (m *Metrics) RecordError(errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(errorType, operation).Inc()
}

// RecordCertValidation records the outcome and duration of an AuthZEN trust
// evaluation against the server's trust registry.
func (m *Metrics) RecordCertValidation(duration time.Duration, success bool) {
	outcome := "valid"
	if !success {
		outcome = "invalid"
	}
	m.TrustMarkValidationTotal.WithLabelValues(outcome).Inc()
	m.TrustMarkValidationDuration.Observe(duration.Seconds())
}

// RegisterMetricsEndpoint exposes m's registry at GET /metrics in Prometheus
// text exposition format.
func RegisterMetricsEndpoint(r *gin.Engine, m *Metrics) {
	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	r.GET("/metrics", gin.WrapH(handler))
}
