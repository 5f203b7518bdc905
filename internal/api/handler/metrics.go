package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inaltera_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inaltera_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ledgerAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inaltera_ledger_appends_total",
		Help: "Total ledger entries appended, by ledger.",
	}, []string{"ledger"})

	verifyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inaltera_verify_requests_total",
		Help: "Public verification lookups by result.",
	}, []string{"result"})

	auditEventFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inaltera_audit_event_failures_total",
		Help: "Audit events diverted to the failure marker store.",
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

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLedgerAppend counts an appended entry on the named ledger.
func RecordLedgerAppend(ledger string) {
	ledgerAppendsTotal.WithLabelValues(ledger).Inc()
}

// RecordVerify counts a public verification lookup.
func RecordVerify(valid bool) {
	if valid {
		verifyRequestsTotal.WithLabelValues("valid").Inc()
	} else {
		verifyRequestsTotal.WithLabelValues("not_valid").Inc()
	}
}

// RecordAuditEventFailure counts an audit event that could not be appended.
func RecordAuditEventFailure() {
	auditEventFailuresTotal.Inc()
}
