package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// 1) Request volume by method and status class
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests handled.",
	}, []string{"method", "status"})

	// 2) Request latency
	RequestDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "End-to-end handler duration for HTTP requests.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	})

	// 3) Suggestion outcomes: ok | throttled | error
	SuggestionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suggestions_total",
		Help: "Suggestion requests by outcome.",
	}, []string{"outcome"})

	// 4) Provider call latency (per attempt)
	ProviderDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "suggestion_provider_duration_seconds",
		Help:    "Duration of a single call to the text-generation provider.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
	})

	// 5) Provider attempts: ok | error
	ProviderAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suggestion_provider_attempts_total",
		Help: "Calls to the text-generation provider by result.",
	}, []string{"result"})

	// 6) Tracked quota keys in the in-memory store
	QuotaKeys = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "suggestion_quota_keys",
		Help: "Client quota records currently held in memory.",
	})

	// 7) Anonymous messages accepted
	MessagesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_sent_total",
		Help: "Anonymous messages stored for a profile.",
	})

	// 8) Verification emails by result: ok | error
	VerificationEmailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_emails_total",
		Help: "Verification emails by delivery result.",
	}, []string{"result"})
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestsTotal,
		RequestDurationSeconds,
		SuggestionsTotal,
		ProviderDurationSeconds,
		ProviderAttemptsTotal,
		QuotaKeys,
		MessagesSentTotal,
		VerificationEmailsTotal,
	)
}
