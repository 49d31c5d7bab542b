// Package verifier decides whether a piece of OCR text is a genuine
// quotation from the reference corpus. A Verifier is constructed once, loaded
// once, and then shared by any number of concurrent callers.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/index"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/ranker"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/config"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrLoad wraps any failure to read or parse the corpus.
	ErrLoad = errors.New("corpus load failed")
	// ErrNotLoaded is returned when matching is attempted before a
	// successful Load.
	ErrNotLoaded = errors.New("verifier not loaded")
)

// DefaultThreshold is the minimum similarity for a positive verdict.
const DefaultThreshold = 0.70

// State is the lifecycle phase of a Verifier.
type State int32

const (
	StateUnloaded State = iota
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Options tunes matching.
type Options struct {
	Threshold     float64
	MaxCandidates int
}

// DefaultOptions returns the production thresholds.
func DefaultOptions() Options {
	return Options{
		Threshold:     DefaultThreshold,
		MaxCandidates: ranker.DefaultLimit,
	}
}

// OptionsFromConfig converts the verifier section of the config, falling
// back to defaults for unset values.
func OptionsFromConfig(cfg config.VerifierConfig) Options {
	opts := DefaultOptions()
	if cfg.Threshold > 0 {
		opts.Threshold = cfg.Threshold
	}
	if cfg.MaxCandidates > 0 {
		opts.MaxCandidates = cfg.MaxCandidates
	}
	return opts
}

// Stats describes a loaded corpus.
type Stats struct {
	State    string        `json:"state"`
	Source   string        `json:"source"`
	LoadedAt time.Time     `json:"loaded_at,omitempty"`
	LoadTime time.Duration `json:"load_time_ns,omitempty"`
	index.Stats
}

type snapshot struct {
	index    *index.Index
	loadedAt time.Time
	loadTime time.Duration
}

// Verifier owns the corpus and its index. The index pointer is written once
// under singleflight and read lock-free afterwards.
type Verifier struct {
	source corpus.Source
	opts   Options
	group  singleflight.Group
	snap   atomic.Pointer[snapshot]
	logger *slog.Logger
}

// New creates an unloaded Verifier reading from source.
func New(source corpus.Source, opts Options) *Verifier {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = ranker.DefaultLimit
	}
	return &Verifier{
		source: source,
		opts:   opts,
		logger: slog.Default().With("component", "verifier"),
	}
}

// Load reads the corpus and builds the index. Once it has succeeded further
// calls return nil immediately. Concurrent calls share a single load and its
// outcome; after a failure the Verifier stays unloaded and a later call tries
// again. The context of the caller that starts the load governs it.
func (v *Verifier) Load(ctx context.Context) error {
	if v.snap.Load() != nil {
		return nil
	}
	_, err, _ := v.group.Do("load", func() (any, error) {
		if v.snap.Load() != nil {
			return nil, nil
		}
		return nil, v.load(ctx)
	})
	return err
}

func (v *Verifier) load(ctx context.Context) error {
	start := time.Now()
	v.logger.Info("loading corpus", "source", v.source.Name())
	records, err := v.source.Load(ctx)
	if err != nil {
		v.logger.Error("corpus load failed", "source", v.source.Name(), "error", err)
		return fmt.Errorf("%w: %s: %w", ErrLoad, v.source.Name(), err)
	}
	ix := index.Build(records)
	elapsed := time.Since(start)
	v.snap.Store(&snapshot{
		index:    ix,
		loadedAt: time.Now().UTC(),
		loadTime: elapsed,
	})
	stats := ix.Stats()
	v.logger.Info("corpus loaded",
		"source", v.source.Name(),
		"records", stats.Records,
		"terms", stats.Terms,
		"empty_records", stats.EmptyRecords,
		"duration", elapsed,
	)
	return nil
}

// State reports whether the corpus has been loaded.
func (v *Verifier) State() State {
	if v.snap.Load() == nil {
		return StateUnloaded
	}
	return StateLoaded
}

// Options returns the matching options in effect.
func (v *Verifier) Options() Options {
	return v.opts
}

// Stats describes the loaded corpus. Before Load succeeds only State and
// Source are set.
func (v *Verifier) Stats() Stats {
	s := Stats{
		State:  v.State().String(),
		Source: v.source.Name(),
	}
	snap := v.snap.Load()
	if snap == nil {
		return s
	}
	s.LoadedAt = snap.loadedAt
	s.LoadTime = snap.loadTime
	s.Stats = snap.index.Stats()
	return s
}

// TopTerms returns the most widespread corpus tokens, or nil before Load.
func (v *Verifier) TopTerms(n int) []index.TermEntry {
	snap := v.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.index.TopTerms(n)
}

// FindMatch returns the verdict for text. The only error is ErrNotLoaded;
// empty or unmatched text yields a negative verdict.
func (v *Verifier) FindMatch(text string) (Result, error) {
	snap := v.snap.Load()
	if snap == nil {
		return Result{Query: text}, ErrNotLoaded
	}
	res := Match(snap.index, text, v.opts)
	v.logger.Debug("match evaluated",
		"verified", res.Verified,
		"similarity", res.Similarity,
		"candidates", res.Candidates,
	)
	return res, nil
}
