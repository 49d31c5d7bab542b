// Package analytics tracks verification verdicts: a Collector fans events out
// to Kafka, and an Aggregator folds them into the summary served at
// /api/v1/analytics.
package analytics

import "time"

// Transport names where a verdict was requested.
const (
	TransportHTTP  = "http"
	TransportKafka = "kafka"
)

// VerificationEvent describes one verdict.
type VerificationEvent struct {
	Transport   string    `json:"transport"`
	Outcome     string    `json:"outcome"`
	Verified    bool      `json:"verified"`
	Similarity  float64   `json:"similarity"`
	Candidates  int       `json:"candidates"`
	PostID      string    `json:"post_id,omitempty"`
	Cached      bool      `json:"cached"`
	Prefiltered bool      `json:"prefiltered"`
	LatencyMs   float64   `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}
