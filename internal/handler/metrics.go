package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/debenture/internal/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	debRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debenture_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	debRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "debenture_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	debPayoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debenture_payouts_total",
		Help: "Committed payouts by kind.",
	}, []string{"kind"})

	debPayoutPeriodsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debenture_payout_periods_total",
		Help: "Amortization periods closed by payouts, by kind.",
	}, []string{"kind"})

	debPayoutAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debenture_payout_amount_total",
		Help: "Sum of credited payout amounts by kind (approximate, float).",
	}, []string{"kind"})

	debRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debenture_rejections_total",
		Help: "Rejected engine calls by operation and reason.",
	}, []string{"op", "reason"})

	debWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debenture_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})

	debBotRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debenture_bot_runs_total",
		Help: "Settlement bot cycles by result.",
	}, []string{"result"})

	debDependencyChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debenture_dependency_checks_total",
		Help: "Dependency readiness probes by dependency and result.",
	}, []string{"dependency", "result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		debRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		debRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// EngineMetrics records amortization engine outcomes. It satisfies
// amortization.Metrics.
type EngineMetrics struct{}

// NewEngineMetrics returns the engine recorder.
func NewEngineMetrics() *EngineMetrics { return &EngineMetrics{} }

// ObservePayout records one committed payout.
func (EngineMetrics) ObservePayout(kind ledger.ReceiptKind, periods int64, amount decimal.Decimal) {
	k := string(kind)
	debPayoutsTotal.WithLabelValues(k).Inc()
	debPayoutPeriodsTotal.WithLabelValues(k).Add(float64(periods))
	if f := amount.InexactFloat64(); f > 0 {
		debPayoutAmountTotal.WithLabelValues(k).Add(f)
	}
}

// ObserveRejection records one rejected call.
func (EngineMetrics) ObserveRejection(op, reason string) {
	debRejectionsTotal.WithLabelValues(op, reason).Inc()
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		debWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		debWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}

// RecordBotRun records the result of one settlement bot cycle.
func RecordBotRun(failed bool) {
	if failed {
		debBotRunsTotal.WithLabelValues("failure").Inc()
	} else {
		debBotRunsTotal.WithLabelValues("success").Inc()
	}
}

// RecordDependencyCheck records one readiness probe of a dependency.
func RecordDependencyCheck(name string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	debDependencyChecksTotal.WithLabelValues(name, result).Inc()
}
