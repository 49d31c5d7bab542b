// Package bootstrap wires the corpus source and verifier shared by the
// service binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/resilience"
)

// Corpus holds the verifier and whatever connection its source needs.
// Close releases the connection.
type Corpus struct {
	Verifier *verifier.Verifier
	DB       *postgres.Client
}

// Close releases the database connection, if any.
func (c *Corpus) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// NewCorpus builds an unloaded verifier for cfg, opening Postgres when the
// corpus lives there.
func NewCorpus(ctx context.Context, cfg *config.Config) (*Corpus, error) {
	var c Corpus
	if cfg.Corpus.Source == config.SourcePostgres {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting corpus database: %w", err)
		}
		c.DB = db
	}
	var src corpus.Source
	var err error
	if c.DB != nil {
		src, err = corpus.FromConfig(cfg.Corpus, c.DB.DB)
	} else {
		src, err = corpus.FromConfig(cfg.Corpus, nil)
	}
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Verifier = verifier.New(src, verifier.OptionsFromConfig(cfg.Verifier))
	return &c, nil
}

// Load loads v, retrying transient failures. Each attempt is bounded by
// timeout. Malformed corpora are not retried. m may be nil.
func Load(ctx context.Context, v *verifier.Verifier, timeout time.Duration, m *metrics.Metrics) error {
	retry := resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Retryable: func(err error) bool {
			return !errors.Is(err, corpus.ErrMalformed) && !errors.Is(err, context.Canceled)
		},
	}
	return resilience.Retry(ctx, "corpus-load", retry, func(ctx context.Context) error {
		start := time.Now()
		err := resilience.WithTimeout(ctx, timeout, "corpus-load", v.Load)
		if m != nil {
			st := v.Stats()
			m.ObserveCorpusLoad(err, st.Records, st.Terms, time.Since(start))
		}
		if err != nil {
			slog.Warn("corpus load attempt failed", "error", err)
		}
		return err
	})
}
