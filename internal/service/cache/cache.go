// Package cache memoises verdicts in Redis. Keys are derived from the
// normalized query so OCR variants that normalize identically share an
// entry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/normalizer"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "verdict:"

// Store is the key/value backend. *pkgredis.Client implements it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
	Breaker string  `json:"breaker"`
}

// VerdictCache sits in front of Verifier.FindMatch. Redis failures never
// fail a request: they count as misses and, once repeated, trip a breaker
// that skips Redis until it recovers.
type VerdictCache struct {
	store     Store
	ttl       time.Duration
	threshold float64
	breaker   *resilience.CircuitBreaker
	metrics   *metrics.Metrics
	group     singleflight.Group
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// Option configures a VerdictCache.
type Option func(*VerdictCache)

// WithMetrics reports hits and misses to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *VerdictCache) { c.metrics = m }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *VerdictCache) { c.breaker = cb }
}

// New creates a VerdictCache. threshold is part of every key so a config
// change never serves verdicts computed under a different threshold.
func New(store Store, ttl time.Duration, threshold float64, opts ...Option) *VerdictCache {
	c := &VerdictCache{
		store:     store,
		ttl:       ttl,
		threshold: threshold,
		logger:    slog.Default().With("component", "verdict-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
		})
	}
	return c
}

// GetOrCompute returns the cached verdict for text or computes, stores and
// returns it. Concurrent calls for the same key share one computation.
// Errors from compute are returned and never cached.
func (c *VerdictCache) GetOrCompute(ctx context.Context, text string, compute func() (verifier.Result, error)) (verifier.Result, bool, error) {
	key := c.Key(text)
	if res, ok := c.lookup(ctx, key); ok {
		c.recordHit()
		res.Query = text
		return res, true, nil
	}

	val, err, shared := c.group.Do(key, func() (any, error) {
		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return verifier.Result{Query: text}, false, err
	}
	if shared {
		c.recordHit()
	} else {
		c.recordMiss()
	}
	res := val.(verifier.Result)
	res.Query = text
	return res, shared, nil
}

// Invalidate removes every cached verdict.
func (c *VerdictCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating verdict cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns hit and miss counters since start.
func (c *VerdictCache) Stats() Stats {
	s := Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Breaker: c.breaker.GetState().String(),
	}
	s.Total = s.Hits + s.Misses
	if s.Total > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Total)
	}
	return s
}

// Key returns the Redis key for text.
func (c *VerdictCache) Key(text string) string {
	h := sha256.New()
	h.Write([]byte(normalizer.Normalize(text)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(c.threshold, 'f', -1, 64)))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *VerdictCache) lookup(ctx context.Context, key string) (verifier.Result, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return verifier.Result{}, false
	}
	if data == nil {
		return verifier.Result{}, false
	}
	var res verifier.Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return verifier.Result{}, false
	}
	return res, true
}

func (c *VerdictCache) put(ctx context.Context, key string, res verifier.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *VerdictCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *VerdictCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
