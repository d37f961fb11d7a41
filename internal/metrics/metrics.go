package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Dispatcher
	JobsDispatched  *prometheus.CounterVec
	DispatchPages   prometheus.Counter
	OverdueJobs     prometheus.Counter
	UnknownOperator prometheus.Counter

	// Workers
	ChargeAttempts  *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	Requeues        *prometheus.CounterVec
	SkippedJobs     *prometheus.CounterVec

	// Result consumer
	LedgerDrains      prometheus.Counter
	DrainErrors       prometheus.Counter
	OutcomesProcessed *prometheus.CounterVec
	MalformedOutcomes prometheus.Counter

	// Notifications
	NotificationsPublished *prometheus.CounterVec
	FallbackWrites         prometheus.Counter
	FallbackRetries        *prometheus.CounterVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renewal_jobs_dispatched_total",
				Help: "Total number of renewal jobs enqueued by the dispatcher",
			},
			[]string{"operator"},
		),
		DispatchPages: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "renewal_dispatch_pages_total",
				Help: "Total number of subscription pages read by the dispatcher",
			},
		),
		OverdueJobs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "renewal_dispatch_overdue_total",
				Help: "Total number of jobs whose billing moment had already passed at dispatch",
			},
		),
		UnknownOperator: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "renewal_dispatch_unknown_operator_total",
				Help: "Total number of subscriptions skipped for an unmapped payment channel",
			},
		),

		ChargeAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renewal_charge_attempts_total",
				Help: "Total number of gateway charge attempts",
			},
			[]string{"operator", "result"},
		),
		GatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "renewal_gateway_duration_seconds",
				Help:    "Duration of carrier gateway calls in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operator"},
		),
		Requeues: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renewal_requeues_total",
				Help: "Total number of same-day re-queues after a failed charge",
			},
			[]string{"operator"},
		),
		SkippedJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renewal_skipped_jobs_total",
				Help: "Total number of jobs completed without a charge attempt",
			},
			[]string{"operator", "reason"},
		),

		LedgerDrains: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "renewal_ledger_drains_total",
				Help: "Total number of result ledger drain ticks that processed entries",
			},
		),
		DrainErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "renewal_drain_errors_total",
				Help: "Total number of drain batches that failed and were pushed back",
			},
		),
		OutcomesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renewal_outcomes_processed_total",
				Help: "Total number of charge outcomes persisted by the result consumer",
			},
			[]string{"result"},
		),
		MalformedOutcomes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "renewal_malformed_outcomes_total",
				Help: "Total number of ledger entries that failed to parse",
			},
		),

		NotificationsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renewal_notifications_published_total",
				Help: "Total number of notification publish attempts",
			},
			[]string{"status"},
		),
		FallbackWrites: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "renewal_fallback_writes_total",
				Help: "Total number of notifications parked in the fallback store",
			},
		),
		FallbackRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renewal_fallback_retries_total",
				Help: "Total number of fallback redelivery attempts",
			},
			[]string{"status"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renewal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "renewal_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

func (m *Metrics) RecordDispatch(operator string) {
	m.JobsDispatched.WithLabelValues(operator).Inc()
}

func (m *Metrics) RecordChargeAttempt(operator string, success bool, duration time.Duration) {
	m.ChargeAttempts.WithLabelValues(operator, resultLabel(success)).Inc()
	m.GatewayDuration.WithLabelValues(operator).Observe(duration.Seconds())
}

func (m *Metrics) RecordOutcome(success bool) {
	m.OutcomesProcessed.WithLabelValues(resultLabel(success)).Inc()
}

func (m *Metrics) RecordPublish(err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.NotificationsPublished.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(duration.Seconds())
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
