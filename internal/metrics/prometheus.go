package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termsheet_documents_ingested_total",
			Help: "Documents ingested, by format and outcome",
		},
		[]string{"format", "status"},
	)

	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "termsheet_extraction_duration_seconds",
			Help:    "Time spent extracting fields from a document",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"format"},
	)

	VersionsCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termsheet_versions_committed_total",
			Help: "Trade snapshots committed, by created or updated",
		},
		[]string{"status"},
	)

	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termsheet_classifications_total",
			Help: "Classification reports produced, by primary type",
		},
		[]string{"primary"},
	)

	ClassificationConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "termsheet_classification_confidence",
			Help:    "Mandatory coverage of the primary type, in percent",
			Buckets: []float64{10, 25, 50, 75, 90, 100},
		},
	)

	Validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termsheet_validations_total",
			Help: "Validation runs, by derivative type and HTTP status",
		},
		[]string{"type", "status"},
	)

	Anomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termsheet_anomalies_total",
			Help: "Anomalies reported by validation, by type and severity",
		},
		[]string{"type", "severity"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termsheet_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termsheet_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	TradesTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "termsheet_trades_tracked",
			Help: "Trades with at least one committed snapshot",
		},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "termsheet_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. It is safe to
// call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			DocumentsIngested,
			ExtractionDuration,
			VersionsCommitted,
			Classifications,
			ClassificationConfidence,
			Validations,
			Anomalies,
			CacheHits,
			CacheMisses,
			TradesTracked,
			RateLimited,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
