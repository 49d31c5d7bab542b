package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/kafka"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	maxLatencySamples = 10000
	similarityBuckets = 10
	topPostsLimit     = 10
)

// AggregatedStats summarises every event seen since the aggregator started.
type AggregatedStats struct {
	Total             int64            `json:"total"`
	Verified          int64            `json:"verified"`
	Unverified        int64            `json:"unverified"`
	NoCandidates      int64            `json:"no_candidates"`
	Prefiltered       int64            `json:"prefiltered"`
	CacheHits         int64            `json:"cache_hits"`
	VerifiedRatio     float64          `json:"verified_ratio"`
	ByTransport       map[string]int64 `json:"by_transport"`
	SimilarityBuckets []int64          `json:"similarity_buckets"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      float64          `json:"p50_latency_ms"`
	P95LatencyMs      float64          `json:"p95_latency_ms"`
	P99LatencyMs      float64          `json:"p99_latency_ms"`
	TopPosts          []PostCount      `json:"top_posts"`
	VerdictsPerMinute float64          `json:"verdicts_per_minute"`
	Since             time.Time        `json:"since"`
}

// PostCount is how often a reference post was the verified match.
type PostCount struct {
	PostID string `json:"post_id"`
	Count  int64  `json:"count"`
}

// Aggregator folds VerificationEvents into running totals. Latency
// percentiles are computed over the most recent samples only.
type Aggregator struct {
	mu           sync.Mutex
	total        int64
	verified     int64
	unverified   int64
	noCandidates int64
	prefiltered  int64
	cacheHits    int64
	byTransport  map[string]int64
	buckets      [similarityBuckets]int64
	latencies    []float64
	latencyNext  int
	latencySum   float64
	latencyN     int64
	postCounts   map[string]int64
	startTime    time.Time
	now          func() time.Time

	logger *slog.Logger
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		byTransport: make(map[string]int64),
		latencies:   make([]float64, 0, 1024),
		postCounts:  make(map[string]int64),
		startTime:   time.Now().UTC(),
		now:         time.Now,
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
}

// Record folds one event into the totals.
func (a *Aggregator) Record(event VerificationEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.byTransport[event.Transport]++
	switch {
	case event.Prefiltered:
		a.prefiltered++
	case event.Verified:
		a.verified++
	case event.Candidates == 0:
		a.noCandidates++
	default:
		a.unverified++
	}
	if event.Cached {
		a.cacheHits++
	}
	if event.Candidates > 0 {
		a.buckets[bucketFor(event.Similarity)]++
	}
	if event.Verified && event.PostID != "" {
		a.postCounts[event.PostID]++
	}

	a.latencySum += event.LatencyMs
	a.latencyN++
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
	}
}

// Stats returns a snapshot of the totals.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		Total:             a.total,
		Verified:          a.verified,
		Unverified:        a.unverified,
		NoCandidates:      a.noCandidates,
		Prefiltered:       a.prefiltered,
		CacheHits:         a.cacheHits,
		ByTransport:       make(map[string]int64, len(a.byTransport)),
		SimilarityBuckets: append([]int64(nil), a.buckets[:]...),
		TopPosts:          topN(a.postCounts, topPostsLimit),
		Since:             a.startTime,
	}
	for k, v := range a.byTransport {
		stats.ByTransport[k] = v
	}
	if a.total > 0 {
		stats.VerifiedRatio = float64(a.verified) / float64(a.total)
	}
	if a.latencyN > 0 {
		stats.AvgLatencyMs = a.latencySum / float64(a.latencyN)
		sorted := append([]float64(nil), a.latencies...)
		sort.Float64s(sorted)
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.VerdictsPerMinute = float64(a.total) / elapsed
	}
	return stats
}

// HandleEvent returns a kafka.MessageHandler that records analytics events
// published by a Collector. Undecodable messages are skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, msg kafkago.Message) error {
		event, err := kafka.DecodeJSON[VerificationEvent](msg.Value)
		if err != nil {
			return errors.Join(kafka.ErrSkip, err)
		}
		agg.Record(event)
		return nil
	}
}

// bucketFor maps a similarity in [0,1] to one of ten equal-width buckets;
// 1.0 falls in the last bucket.
func bucketFor(sim float64) int {
	b := int(sim * similarityBuckets)
	if b < 0 {
		return 0
	}
	if b >= similarityBuckets {
		return similarityBuckets - 1
	}
	return b
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []PostCount {
	result := make([]PostCount, 0, len(counts))
	for id, count := range counts {
		result = append(result, PostCount{PostID: id, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].PostID < result[j].PostID
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
