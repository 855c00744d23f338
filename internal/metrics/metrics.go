package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexiprep_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexiprep_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexiprep_ai_requests_total",
			Help: "Total number of AI provider invocations.",
		},
		[]string{"endpoint", "status"},
	)

	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexiprep_ai_tokens_total",
			Help: "Total tokens consumed by AI provider invocations.",
		},
		[]string{"endpoint"},
	)

	QuotaDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexiprep_quota_denied_total",
			Help: "Total number of AI requests denied by the quota gate.",
		},
		[]string{"tier"},
	)

	UsageRecordFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lexiprep_usage_record_failures_total",
			Help: "Total number of usage events that could not be recorded.",
		},
	)

	UsageEventsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lexiprep_usage_events_purged_total",
			Help: "Total number of usage events removed by the retention sweep.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AIRequestsTotal,
		AITokensTotal,
		QuotaDeniedTotal,
		UsageRecordFailuresTotal,
		UsageEventsPurgedTotal,
	)
}
