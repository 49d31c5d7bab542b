package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *capturePublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return p.err
}

func (p *capturePublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestCollectorRecordsAndPublishes(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := &capturePublisher{}
	agg := NewAggregator()
	c := NewCollector(pub, agg, 16)
	c.Start(context.Background())

	c.Track(VerificationEvent{Transport: TransportHTTP, Outcome: "verified", Verified: true, Candidates: 1})
	c.Track(VerificationEvent{Transport: TransportHTTP, Outcome: "unverified", Candidates: 2})
	assert.Equal(t, int64(2), agg.Stats().Total, "local recording is synchronous")

	c.Close()
	assert.Equal(t, 2, pub.published())
	assert.Equal(t, "verified", pub.batches[0][0].Key)
}

func TestCollectorFlushesFullBatches(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := &capturePublisher{}
	c := NewCollector(pub, nil, 1000)
	c.flushInterval = time.Hour
	c.Start(context.Background())

	for i := 0; i < 250; i++ {
		c.Track(VerificationEvent{Outcome: "verified"})
	}
	assert.Eventually(t, func() bool { return pub.published() >= 200 }, time.Second, time.Millisecond)
	c.Close()

	assert.Equal(t, 250, pub.published())
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Len(t, pub.batches, 3)
	assert.Len(t, pub.batches[0], 100)
}

func TestCollectorFlushesOnTicker(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := &capturePublisher{}
	c := NewCollector(pub, nil, 10)
	c.flushInterval = 10 * time.Millisecond
	c.Start(context.Background())
	defer c.Close()

	c.Track(VerificationEvent{Outcome: "no_candidates"})
	assert.Eventually(t, func() bool { return pub.published() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorDrainsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := &capturePublisher{}
	c := NewCollector(pub, nil, 10)
	c.flushInterval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.Track(VerificationEvent{Outcome: "verified"})
	cancel()
	c.Close()
	assert.Equal(t, 1, pub.published())
}

func TestCollectorSurvivesPublishErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := &capturePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, nil, 10)
	c.Start(context.Background())
	c.Track(VerificationEvent{Outcome: "verified"})
	c.Close()
	assert.Equal(t, 1, pub.published())
}

func TestCollectorDropsWhenFull(t *testing.T) {
	agg := NewAggregator()
	c := NewCollector(&capturePublisher{}, agg, 1)

	c.Track(VerificationEvent{Outcome: "verified"})
	c.Track(VerificationEvent{Outcome: "verified"})
	assert.Len(t, c.eventCh, 1)
	assert.Equal(t, int64(2), agg.Stats().Total)

	c.Start(context.Background())
	c.Close()
}

func TestCollectorTrackAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	agg := NewAggregator()
	c := NewCollector(&capturePublisher{}, agg, 10)
	c.Start(context.Background())
	c.Close()
	c.Close()

	assert.NotPanics(t, func() { c.Track(VerificationEvent{Outcome: "verified"}) })
	assert.Equal(t, int64(1), agg.Stats().Total)
}

func TestCollectorWithoutPublisher(t *testing.T) {
	defer goleak.VerifyNone(t)

	agg := NewAggregator()
	c := NewCollector(nil, agg, 0)
	c.Start(context.Background())
	c.Track(VerificationEvent{Outcome: "verified", Verified: true})
	c.Close()
	assert.Equal(t, int64(1), agg.Stats().Verified)
}
