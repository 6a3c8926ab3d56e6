package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QuoteLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dexswap_quote_latency_seconds",
		Help:    "Time to obtain a router quote",
		Buckets: prometheus.DefBuckets,
	})

	QuoteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dexswap_quote_errors_total",
		Help: "Number of failed router quotes",
	})

	SwapAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dexswap_swap_attempts_total",
		Help: "Swap attempts by swap kind and outcome",
	}, []string{"kind", "outcome"})

	Retries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dexswap_retries_total",
		Help: "Number of retryable swap failures that were retried",
	})

	Fallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dexswap_fallbacks_total",
		Help: "Number of reduced-amount fallback sells attempted",
	})

	ConfirmLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dexswap_confirm_latency_seconds",
		Help:    "Time from submission until the transaction was mined",
		Buckets: []float64{1, 3, 5, 10, 20, 30, 60, 120, 300},
	})
)

// Outcome labels for SwapAttempts
const (
	OutcomeConfirmed = "confirmed"
	OutcomeRetryable = "retryable"
	OutcomeFatal     = "fatal"
)

func init() {
	prometheus.MustRegister(
		QuoteLatency,
		QuoteErrors,
		SwapAttempts,
		Retries,
		Fallbacks,
		ConfirmLatency,
	)
}
