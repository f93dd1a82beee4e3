// Package metrics exposes prometheus instrumentation for the HTTP layer and
// the reconciliation pipeline.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	reconcileEvents  *prometheus.CounterVec
	gatewayFailures  *prometheus.CounterVec
	receiptSandboxed prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fanbase_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fanbase_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		reconcileEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fanbase_reconcile_events_total",
			Help: "Reconciliation events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		gatewayFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fanbase_gateway_failures_total",
			Help: "Outbound gateway call failures by operation and class.",
		}, []string{"operation", "class"}),
		receiptSandboxed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fanbase_receipt_sandbox_retries_total",
			Help: "Receipt verifications redirected to the sandbox endpoint.",
		}),
	}
}

func (m *Metrics) RecordReconcileEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.reconcileEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordGatewayFailure(operation, class string) {
	if m == nil {
		return
	}
	m.gatewayFailures.WithLabelValues(operation, class).Inc()
}

func (m *Metrics) RecordReceiptSandboxRetry() {
	if m == nil {
		return
	}
	m.receiptSandboxed.Inc()
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
