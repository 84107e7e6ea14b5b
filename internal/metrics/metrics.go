// Package metrics exposes the Prometheus collectors served on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coaching",
		Subsystem: "ledger",
		Name:      "payments_recorded_total",
		Help:      "Payments appended to the ledger, by method.",
	}, []string{"method"})

	PaymentAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coaching",
		Subsystem: "ledger",
		Name:      "payment_amount_total",
		Help:      "Sum of recorded payment amounts, by method.",
	}, []string{"method"})

	PaymentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coaching",
		Subsystem: "ledger",
		Name:      "payment_replays_total",
		Help:      "Payment submissions answered from an existing idempotency key.",
	})

	SalaryPayments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coaching",
		Subsystem: "ledger",
		Name:      "salary_payments_total",
		Help:      "Salary payment requests, by result (paid, already_paid).",
	}, []string{"result"})

	CodesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coaching",
		Subsystem: "ledger",
		Name:      "codes_issued_total",
		Help:      "Sequence codes handed out, by series.",
	}, []string{"series"})

	AttendanceMarks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coaching",
		Subsystem: "attendance",
		Name:      "marks_total",
		Help:      "Attendance marks written, by kind (daily, subject) and status.",
	}, []string{"kind", "status"})

	LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coaching",
		Subsystem: "live",
		Name:      "subscribers",
		Help:      "Open live-update subscriptions.",
	})

	QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coaching",
		Subsystem: "queue",
		Name:      "messages_total",
		Help:      "Queue messages, by type and outcome.",
	}, []string{"type", "outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coaching",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Messages waiting in the notifications queue.",
	})

	NotificationsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coaching",
		Subsystem: "worker",
		Name:      "notifications_delivered_total",
		Help:      "Notifications marked delivered and fanned out.",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coaching",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// GinMiddleware records RequestDuration for every routed request.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
