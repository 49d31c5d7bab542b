// Package worker verifies quotes arriving on Kafka and publishes verdicts
// for the chat bot to act on.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/prefilter"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/metrics"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Message processing statuses reported to metrics.
const (
	StatusProcessed    = "processed"
	StatusMalformed    = "malformed"
	StatusNotLoaded    = "not_loaded"
	StatusPublishError = "publish_error"
)

// VerificationRequest is the payload consumed from the requests topic.
type VerificationRequest struct {
	MessageID  string    `json:"message_id"`
	ChannelID  string    `json:"channel_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// VerdictEvent is the payload published to the verdicts topic.
type VerdictEvent struct {
	MessageID   string    `json:"message_id"`
	ChannelID   string    `json:"channel_id"`
	Verified    bool      `json:"verified"`
	Similarity  float64   `json:"similarity"`
	PostID      string    `json:"post_id,omitempty"`
	PostURL     string    `json:"post_url,omitempty"`
	Prefiltered bool      `json:"prefiltered"`
	LatencyMs   float64   `json:"latency_ms"`
	VerifiedAt  time.Time `json:"verified_at"`
}

// Matcher is satisfied by *verifier.Verifier.
type Matcher interface {
	FindMatch(text string) (verifier.Result, error)
}

// Worker turns VerificationRequests into VerdictEvents.
type Worker struct {
	matcher   Matcher
	publisher kafka.Publisher
	collector *analytics.Collector
	metrics   *metrics.Metrics
	prefilter bool
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithPrefilter skips matching for texts that do not look like a post.
func WithPrefilter(enabled bool) Option {
	return func(w *Worker) { w.prefilter = enabled }
}

// WithCollector tracks every verdict in c.
func WithCollector(c *analytics.Collector) Option {
	return func(w *Worker) { w.collector = c }
}

// WithMetrics records processing outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// New creates a Worker that publishes verdicts through publisher.
func New(matcher Matcher, publisher kafka.Publisher, opts ...Option) *Worker {
	w := &Worker{
		matcher:   matcher,
		publisher: publisher,
		now:       time.Now,
		logger:    slog.Default().With("component", "verify-worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle is a kafka.MessageHandler. Undecodable payloads are skipped;
// matching and publishing failures are returned so the offset is not
// committed.
func (w *Worker) Handle(ctx context.Context, msg kafkago.Message) error {
	start := w.now()
	req, err := kafka.DecodeJSON[VerificationRequest](msg.Value)
	if err != nil {
		w.count(StatusMalformed)
		return errors.Join(kafka.ErrSkip, err)
	}
	if req.MessageID == "" {
		req.MessageID = string(msg.Key)
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}
	log := w.logger.With("message_id", req.MessageID, "channel_id", req.ChannelID)

	verdict, res, err := w.Verify(req)
	if err != nil {
		w.count(StatusNotLoaded)
		return fmt.Errorf("verifying message %s: %w", req.MessageID, err)
	}
	elapsed := w.now().Sub(start)
	verdict.LatencyMs = float64(elapsed.Microseconds()) / 1000

	key := req.ChannelID
	if key == "" {
		key = req.MessageID
	}
	if err := w.publisher.Publish(ctx, kafka.Event{Key: key, Value: verdict}); err != nil {
		w.count(StatusPublishError)
		return fmt.Errorf("publishing verdict for %s: %w", req.MessageID, err)
	}

	outcome := res.Outcome()
	if verdict.Prefiltered {
		outcome = "prefiltered"
	}
	w.count(StatusProcessed)
	if w.metrics != nil {
		w.metrics.ObserveVerdict(analytics.TransportKafka, outcome, res.Similarity, res.Candidates, elapsed)
	}
	if w.collector != nil {
		w.collector.Track(analytics.VerificationEvent{
			Transport:   analytics.TransportKafka,
			Outcome:     outcome,
			Verified:    verdict.Verified,
			Similarity:  verdict.Similarity,
			Candidates:  res.Candidates,
			PostID:      verdict.PostID,
			Prefiltered: verdict.Prefiltered,
			LatencyMs:   verdict.LatencyMs,
			Timestamp:   verdict.VerifiedAt,
			RequestID:   req.MessageID,
		})
	}
	log.Info("verdict published",
		"verified", verdict.Verified,
		"similarity", verdict.Similarity,
		"prefiltered", verdict.Prefiltered,
		"latency_ms", verdict.LatencyMs,
	)
	return nil
}

// Verify computes the verdict for req without publishing it.
func (w *Worker) Verify(req VerificationRequest) (VerdictEvent, verifier.Result, error) {
	verdict := VerdictEvent{
		MessageID: req.MessageID,
		ChannelID: req.ChannelID,
	}
	if w.prefilter && !prefilter.LooksLikeTrumpPost(req.Text) {
		verdict.Prefiltered = true
		verdict.VerifiedAt = w.now().UTC()
		return verdict, verifier.Result{Query: req.Text}, nil
	}

	res, err := w.matcher.FindMatch(req.Text)
	if err != nil {
		return verdict, res, err
	}
	verdict.Verified = res.Verified
	verdict.Similarity = res.Similarity
	if res.Verified && res.Post != nil {
		verdict.PostID = res.Post.ID
		verdict.PostURL = res.Post.URL
	}
	verdict.VerifiedAt = w.now().UTC()
	return verdict, res, nil
}

func (w *Worker) count(status string) {
	if w.metrics != nil {
		w.metrics.WorkerMessagesTotal.WithLabelValues(status).Inc()
	}
}
