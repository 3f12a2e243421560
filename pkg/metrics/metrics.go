package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_processed_total",
			Help: "Total number of inbound emails processed by the pipeline (count)",
		},
		[]string{"status"},
	)

	EmailProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "email_processing_duration_ms",
			Help:    "End-to-end pipeline duration per email in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	DuplicateShortCircuitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_duplicate_short_circuits_total",
			Help: "Total number of re-ingestions short-circuited by message id (count)",
		},
	)

	AssetsStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assets_stored_total",
			Help: "Total number of asset variant records persisted (count)",
		},
		[]string{"kind", "variant"},
	)

	ImageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_failures_total",
			Help: "Total number of per-image derivation or storage failures (count)",
		},
		[]string{"stage"},
	)

	ImageDerivationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_derivation_duration_ms",
			Help:    "Duration of image variant derivation in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"variant"},
	)

	SanitizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "html_sanitize_duration_ms",
			Help:    "Duration of HTML sanitization in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	UnresolvedReferencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unresolved_references_total",
			Help: "Total number of cid/data-uri references left unrewritten (count)",
		},
		[]string{"type"},
	)

	AssetServeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_serve_requests_total",
			Help: "Total number of asset fetch requests (count)",
		},
		[]string{"status"},
	)

	TokenVerifyFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_verify_failures_total",
			Help: "Total number of asset token verification failures (count)",
		},
		[]string{"reason"},
	)

	StoragePutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_put_duration_ms",
			Help:    "Duration of asset store writes in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"driver"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "operation"},
	)
)

func RegisterIngestMetrics() {
	prometheus.MustRegister(
		EmailsProcessedTotal,
		EmailProcessingDuration,
		DuplicateShortCircuitsTotal,
		AssetsStoredTotal,
		ImageFailuresTotal,
		ImageDerivationDuration,
		SanitizeDuration,
		UnresolvedReferencesTotal,
		StoragePutDuration,
		DatabaseQueriesTotal,
		DatabaseQueryDuration,
	)
	registerFallbackUsageTotalOnce()
}

func RegisterAssetServeMetrics() {
	prometheus.MustRegister(
		AssetServeRequestsTotal,
		TokenVerifyFailuresTotal,
	)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(
		KafkaMessagesWrittenTotal,
		KafkaWriteDuration,
	)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	)
}

func RegisterRateLimitMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

var fallbackRegistered bool

func registerFallbackUsageTotalOnce() {
	if !fallbackRegistered {
		prometheus.MustRegister(FallbackUsageTotal)
		fallbackRegistered = true
	}
}

func ObserveEmailProcessingDuration(duration time.Duration, status string) {
	EmailProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveImageDerivationDuration(variant string, duration time.Duration) {
	ImageDerivationDuration.WithLabelValues(variant).Observe(float64(duration.Milliseconds()))
}

func ObserveSanitizeDuration(duration time.Duration) {
	SanitizeDuration.Observe(float64(duration.Milliseconds()))
}

func ObserveStoragePutDuration(driver string, duration time.Duration) {
	StoragePutDuration.WithLabelValues(driver).Observe(float64(duration.Milliseconds()))
}

func IncAssetStored(kind, variant string) {
	AssetsStoredTotal.WithLabelValues(kind, variant).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, operation).Observe(float64(duration.Milliseconds()))
}
