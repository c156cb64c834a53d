// Package metrics exposes Prometheus instrumentation for the recognition
// service on a dedicated registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// RecognitionsTotal counts recognition calls that reached scoring.
	RecognitionsTotal = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "faceguard_recognitions_total",
		Help: "Number of recognition calls evaluated against the identity pool.",
	})

	// MatchesTotal counts qualifying matches across all recognition calls.
	MatchesTotal = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "faceguard_matches_total",
		Help: "Number of identity matches above the score threshold.",
	})

	// TrainingFlushesTotal counts reference embedding recomputations.
	TrainingFlushesTotal = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "faceguard_training_flushes_total",
		Help: "Number of training buffer flushes that updated a reference embedding.",
	})

	// AlertsTotal counts alert dispatch requests that were accepted.
	AlertsTotal = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "faceguard_alerts_total",
		Help: "Number of alerts issued for flagged identity matches.",
	})

	// RecognizeDuration observes end-to-end recognition request latency,
	// including face extraction.
	RecognizeDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "faceguard_recognize_duration_seconds",
		Help:    "Latency of recognition requests.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler returns the HTTP handler serving the service's registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
