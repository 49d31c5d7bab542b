// Package metrics defines the Prometheus collectors used across the service
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	VerificationsTotal   *prometheus.CounterVec
	VerificationLatency  *prometheus.HistogramVec
	SimilarityScore      prometheus.Histogram
	CandidatesCount      prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CorpusLoadsTotal     *prometheus.CounterVec
	CorpusLoadDuration   prometheus.Gauge
	CorpusRecords        prometheus.Gauge
	CorpusTerms          prometheus.Gauge
	WorkerMessagesTotal  *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifications_total",
				Help: "Verification verdicts by transport and outcome (verified, unverified, no_candidates, prefiltered, error).",
			},
			[]string{"transport", "outcome"},
		),
		VerificationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verification_latency_seconds",
				Help:    "Time spent producing a verdict, in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
			[]string{"transport"},
		),
		SimilarityScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "verification_similarity",
				Help:    "Best bigram similarity per verdict.",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
			},
		),
		CandidatesCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "verification_candidates",
				Help:    "Number of candidates scored per verdict.",
				Buckets: []float64{0, 1, 5, 10, 25, 50},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "verdict_cache_hits_total",
				Help: "Total number of verdict cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "verdict_cache_misses_total",
				Help: "Total number of verdict cache misses.",
			},
		),
		CorpusLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_loads_total",
				Help: "Corpus load attempts by status.",
			},
			[]string{"status"},
		),
		CorpusLoadDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_load_duration_seconds",
				Help: "Duration of the last successful corpus load.",
			},
		),
		CorpusRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_records",
				Help: "Number of reference records loaded.",
			},
		),
		CorpusTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_terms",
				Help: "Number of distinct significant words in the index.",
			},
		),
		WorkerMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_messages_total",
				Help: "Kafka verification requests by processing status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.VerificationsTotal,
		m.VerificationLatency,
		m.SimilarityScore,
		m.CandidatesCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CorpusLoadsTotal,
		m.CorpusLoadDuration,
		m.CorpusRecords,
		m.CorpusTerms,
		m.WorkerMessagesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveVerdict records one verdict. similarity and candidates are only
// observed for verdicts that reached the scorer.
func (m *Metrics) ObserveVerdict(transport, outcome string, similarity float64, candidates int, elapsed time.Duration) {
	m.VerificationsTotal.WithLabelValues(transport, outcome).Inc()
	m.VerificationLatency.WithLabelValues(transport).Observe(elapsed.Seconds())
	if candidates > 0 {
		m.SimilarityScore.Observe(similarity)
		m.CandidatesCount.Observe(float64(candidates))
	}
}

// ObserveCorpusLoad records a load attempt and, on success, the corpus size.
func (m *Metrics) ObserveCorpusLoad(err error, records, terms int, elapsed time.Duration) {
	if err != nil {
		m.CorpusLoadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.CorpusLoadsTotal.WithLabelValues("success").Inc()
	m.CorpusLoadDuration.Set(elapsed.Seconds())
	m.CorpusRecords.Set(float64(records))
	m.CorpusTerms.Set(float64(terms))
}

// Handler returns the Prometheus scrape HTTP handler for the default
// registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a scrape handler for a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
