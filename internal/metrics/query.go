package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Query metrics. The operation label names the read path
// (search, card, oracle, named, prices, sets, aggregate).
var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "query_duration_seconds",
			Help:      "Document store query duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)

	QueryResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "query_results",
			Help:      "Documents returned per query",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"operation"},
	)

	CollectionDocuments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "collection_documents",
			Help:      "Documents held per collection",
		},
		[]string{"collection"},
	)
)

var queryOnce sync.Once

// RegisterQueryMetrics registers the query collectors. Safe to call repeatedly.
func RegisterQueryMetrics() {
	queryOnce.Do(func() {
		prometheus.MustRegister(QueryDuration, QueryResults, CollectionDocuments)
	})
}
