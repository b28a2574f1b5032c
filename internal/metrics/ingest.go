package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingestion metrics.
var (
	IngestRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ingest_records_total",
			Help:      "Snapshot records processed, by result",
		},
		[]string{"result"}, // inserted / updated / unchanged / failed
	)

	IngestRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingestion runs, by final status",
		},
		[]string{"status"},
	)

	IngestRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ingest_run_duration_seconds",
			Help:      "Ingestion run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
	)

	IngestDownloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ingest_download_bytes_total",
			Help:      "Bytes of bulk snapshot downloaded",
		},
	)

	IngestLastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "ingest_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful ingestion run",
		},
	)
)

var ingestOnce sync.Once

// RegisterIngestMetrics registers the ingestion collectors. Safe to call repeatedly.
func RegisterIngestMetrics() {
	ingestOnce.Do(func() {
		prometheus.MustRegister(IngestRecordsTotal, IngestRunsTotal, IngestRunDuration, IngestDownloadBytes, IngestLastSuccess)
	})
}
