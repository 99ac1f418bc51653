package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockpoint_tokens_issued_total",
			Help: "Total number of tokens issued, by subject.",
		},
		[]string{"subject"},
	)

	TokensConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockpoint_tokens_consumed_total",
			Help: "Total number of one-shot token consumption attempts.",
		},
		[]string{"subject", "result"},
	)

	ClockEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockpoint_clock_entries_total",
			Help: "Total number of clock entry attempts.",
		},
		[]string{"type", "result"},
	)

	SessionsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockpoint_sessions_created_total",
			Help: "Total number of clock sessions created, by origin.",
		},
		[]string{"origin"},
	)

	SchedulerTickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clockpoint_scheduler_tick_duration_seconds",
			Help:    "Duration of scheduler ticks.",
			Buckets: prometheus.DefBuckets,
		},
	)

	MailDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockpoint_mail_deliveries_total",
			Help: "Total number of outbound mail delivery attempts.",
		},
		[]string{"template", "result"},
	)
)

// MustRegister registers every collector on the default registry with a
// constant service label.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		TokensIssuedTotal,
		TokensConsumedTotal,
		ClockEntriesTotal,
		SessionsCreatedTotal,
		SchedulerTickDurationSeconds,
		MailDeliveriesTotal,
	)
}
