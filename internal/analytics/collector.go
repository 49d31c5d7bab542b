package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/kafka"
)

// Recorder consumes events in-process. *Aggregator implements it.
type Recorder interface {
	Record(VerificationEvent)
}

// Collector accepts events without blocking the caller. Every event goes to
// the local Recorder immediately; when a Publisher is set, events are also
// batched and published to Kafka in the background.
type Collector struct {
	publisher     kafka.Publisher
	recorder      Recorder
	eventCh       chan VerificationEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	startOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewCollector creates a Collector. publisher may be nil, in which case
// events are only recorded locally.
func NewCollector(publisher kafka.Publisher, recorder Recorder, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher:     publisher,
		recorder:      recorder,
		eventCh:       make(chan VerificationEvent, bufferSize),
		batchSize:     100,
		flushInterval: time.Second,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It returns immediately.
func (c *Collector) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		if c.publisher == nil {
			close(c.done)
			return
		}
		go c.run(ctx)
		c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
	})
}

// Track records event and queues it for publishing. When the queue is full
// the event is still recorded locally but not published.
func (c *Collector) Track(event VerificationEvent) {
	if c.recorder != nil {
		c.recorder.Record(event)
	}
	if c.publisher == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops publishing, flushes what is queued and waits for the publish
// loop to exit. Start must have been called. Events tracked after Close are
// still recorded locally.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		if c.publisher != nil {
			close(c.eventCh)
		}
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.publisher.Publish(ctx, batch...); err != nil {
			c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				flush(flushCtx)
				cancel()
				return
			}
			batch = append(batch, kafka.Event{Key: event.Outcome, Value: event})
			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			c.drain(&batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(flushCtx)
			cancel()
			return
		}
	}
}

func (c *Collector) drain(batch *[]kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			*batch = append(*batch, kafka.Event{Key: event.Outcome, Value: event})
		default:
			return
		}
	}
}
