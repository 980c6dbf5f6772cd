// Package observability holds the Prometheus collectors of the bot backend
// and the HTTP middleware that feeds the request metrics.
//
// Collectors register on the default registry at package init.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kikaiken"

// LLMBuckets spans 100ms to two minutes.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   LLMBuckets,
	}, labels)
}

// HTTP surface.
var (
	RequestsTotal   = counter("requests_total", "HTTP requests by method, status and route pattern.", "method", "status", "route")
	RequestDuration = histogram("request_duration_seconds", "HTTP request duration.", "method", "route")

	StreamingConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "streaming_connections_active",
		Help:      "Open server-sent event responses.",
	})

	RateLimitRejectedTotal = counter("ratelimit_rejected_total", "Requests refused by the rate limiter.", "tier")
)

// Chat-completion backends.
var (
	ProviderRequestsTotal = counter("provider_requests_total", "Calls to chat-completion providers.", "provider", "model", "status")
	ProviderLatency       = histogram("provider_latency_seconds", "Provider call latency.", "provider", "model")
	ProviderTokensTotal   = counter("provider_tokens_total", "Tokens reported by providers, by direction.", "provider", "model", "direction")

	// ReasoningFieldsTotal counts reasoning_content values carried into
	// results; path is complete or stream.
	ReasoningFieldsTotal = counter("reasoning_fields_total", "Reasoning fields propagated.", "provider", "path")

	// UntypedResponsesTotal counts completions that arrived in a form the
	// vendor field extraction cannot read.
	UntypedResponsesTotal = counter("untyped_responses_total", "Untyped completion responses.", "provider")
)

// TalkMessagesTotal counts bot conversations by mode (sync, stream) and
// outcome.
var TalkMessagesTotal = counter("talk_messages_total", "Talk messages.", "mode", "outcome")

// RecordProviderCall records one provider call. Zero token counts are
// skipped.
func RecordProviderCall(provider, model string, duration time.Duration, err error, inputTokens, outputTokens int64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ProviderRequestsTotal.WithLabelValues(provider, model, status).Inc()
	ProviderLatency.WithLabelValues(provider, model).Observe(duration.Seconds())

	for dir, n := range map[string]int64{"input": inputTokens, "output": outputTokens} {
		if n > 0 {
			ProviderTokensTotal.WithLabelValues(provider, model, dir).Add(float64(n))
		}
	}
}
