package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// AI provider metrics. The kind label is "embedding" or "completion".
var (
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of AI provider requests",
		},
		[]string{"provider", "model", "kind", "status"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "AI provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model", "kind"},
	)

	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "provider_tokens_total",
			Help:      "Total AI provider tokens consumed",
		},
		[]string{"provider", "model", "type"}, // type: prompt / completion / total
	)

	ProviderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "provider_errors_total",
			Help:      "Total AI provider errors",
		},
		[]string{"provider", "model", "error_type"},
	)

	BudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "budget_tokens_remaining",
			Help:      "Remaining provider token budget, -1 when unlimited",
		},
		[]string{"provider", "period"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var providerOnce sync.Once

// RegisterProviderMetrics registers the AI provider collectors. Safe to call repeatedly.
func RegisterProviderMetrics() {
	providerOnce.Do(func() {
		prometheus.MustRegister(
			ProviderRequestsTotal,
			ProviderRequestDuration,
			ProviderTokensTotal,
			ProviderErrorsTotal,
			BudgetTokensRemaining,
			EmbeddingCacheTotal,
		)
	})
}
