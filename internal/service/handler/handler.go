// Package handler serves the verifier's HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/service/cache"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/explain"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/index"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/prefilter"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/tracing"
)

const (
	defaultTopTerms = 20
	maxTopTerms     = 100
)

// Matcher is the verifier surface the API needs. *verifier.Verifier
// implements it.
type Matcher interface {
	FindMatch(text string) (verifier.Result, error)
	Options() verifier.Options
	Stats() verifier.Stats
	TopTerms(n int) []index.TermEntry
}

// Options tunes request handling.
type Options struct {
	// Prefilter applies the pre-filter to /verify unless the request
	// overrides it with ?prefilter=.
	Prefilter    bool
	MaxBodyBytes int64
}

// VerifyRequest is the body of /verify and /explain.
type VerifyRequest struct {
	Text string `json:"text"`
}

// VerifyResponse is a verdict plus how it was produced.
type VerifyResponse struct {
	verifier.Result
	Cached      bool    `json:"cached"`
	Prefiltered bool    `json:"prefiltered"`
	LatencyMs   float64 `json:"latency_ms"`
}

// ExplainResponse pairs a verdict with its breakdown.
type ExplainResponse struct {
	Result      verifier.Result     `json:"result"`
	Explanation explain.Explanation `json:"explanation"`
}

// CorpusResponse describes the loaded corpus.
type CorpusResponse struct {
	verifier.Stats
	Threshold     float64           `json:"threshold"`
	MaxCandidates int               `json:"max_candidates"`
	TopTerms      []index.TermEntry `json:"top_terms"`
	StopWords     int               `json:"stop_words"`
	Markers       []string          `json:"prefilter_markers"`
}

// Handler holds the API's dependencies. cache, collector and metrics may
// be nil.
type Handler struct {
	verifier  Matcher
	cache     *cache.VerdictCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	opts      Options
	logger    *slog.Logger
}

// New creates a Handler.
func New(v Matcher, verdictCache *cache.VerdictCache, collector *analytics.Collector, m *metrics.Metrics, opts Options) *Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 10
	}
	return &Handler{
		verifier:  v,
		cache:     verdictCache,
		collector: collector,
		metrics:   m,
		opts:      opts,
		logger:    slog.Default().With("component", "verify-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/verify", h.Verify)
	mux.HandleFunc("POST /api/v1/explain", h.Explain)
	mux.HandleFunc("GET /api/v1/prefilter", h.Prefilter)
	mux.HandleFunc("GET /api/v1/corpus", h.Corpus)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Verify handles POST /api/v1/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "verify", middleware.GetRequestID(r.Context()))
	log := logger.FromContext(ctx)
	defer func() {
		span.End()
		span.Log(ctx, log)
	}()

	req, err := h.decode(w, r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	usePrefilter, err := h.prefilterFor(r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	resp := VerifyResponse{Result: verifier.Result{Query: req.Text}}
	if usePrefilter && !h.prefilter(ctx, req.Text) {
		resp.Prefiltered = true
	} else {
		resp.Result, resp.Cached, err = h.match(ctx, req.Text)
		if err != nil {
			h.observe("error", resp, start)
			log.Warn("verification failed", "error", err)
			h.writeAppError(w, err)
			return
		}
	}

	resp.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	outcome := resp.Outcome()
	if resp.Prefiltered {
		outcome = "prefiltered"
	}
	h.observe(outcome, resp, start)
	h.track(ctx, outcome, resp)

	attrs := []any{
		"verified", resp.Verified,
		"similarity", resp.Similarity,
		"candidates", resp.Candidates,
		"cached", resp.Cached,
		"prefiltered", resp.Prefiltered,
		"latency_ms", resp.LatencyMs,
	}
	if resp.Post != nil {
		attrs = append(attrs, "post_id", resp.Post.ID)
	}
	log.Info("verification completed", attrs...)

	h.writeJSON(w, http.StatusOK, resp)
}

// Explain handles POST /api/v1/explain. It always bypasses the cache and
// the pre-filter.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(w, r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	res, err := h.verifier.FindMatch(req.Text)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ExplainResponse{
		Result:      res,
		Explanation: explain.Explain(res, h.verifier.Options().Threshold),
	})
}

// Prefilter handles GET /api/v1/prefilter?text=.
func (h *Handler) Prefilter(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	h.writeJSON(w, http.StatusOK, map[string]bool{
		"looks_like_post": prefilter.LooksLikeTrumpPost(text),
	})
}

// Corpus handles GET /api/v1/corpus?top=N.
func (h *Handler) Corpus(w http.ResponseWriter, r *http.Request) {
	top := defaultTopTerms
	if s := r.URL.Query().Get("top"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.writeAppError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "top must be a non-negative integer"))
			return
		}
		top = min(n, maxTopTerms)
	}
	opts := h.verifier.Options()
	terms := h.verifier.TopTerms(top)
	if terms == nil {
		terms = []index.TermEntry{}
	}
	h.writeJSON(w, http.StatusOK, CorpusResponse{
		Stats:         h.verifier.Stats(),
		Threshold:     opts.Threshold,
		MaxCandidates: opts.MaxCandidates,
		TopTerms:      terms,
		StopWords:     tokenizer.StopWordCount(),
		Markers:       prefilter.Markers(),
	})
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "invalidated",
		"keys_deleted": deleted,
	})
}

func (h *Handler) prefilter(ctx context.Context, text string) bool {
	_, span := tracing.StartChild(ctx, "prefilter")
	defer span.End()
	ok := prefilter.LooksLikeTrumpPost(text)
	span.Set("plausible", ok)
	return ok
}

func (h *Handler) match(ctx context.Context, text string) (verifier.Result, bool, error) {
	ctx, span := tracing.StartChild(ctx, "match")
	defer span.End()

	find := func() (verifier.Result, error) {
		_, scan := tracing.StartChild(ctx, "find_match")
		defer scan.End()
		res, err := h.verifier.FindMatch(text)
		scan.Set("candidates", res.Candidates)
		return res, err
	}
	if h.cache == nil {
		res, err := find()
		return res, false, err
	}
	res, cached, err := h.cache.GetOrCompute(ctx, text, find)
	span.Set("cached", cached)
	return res, cached, err
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (VerifyRequest, error) {
	var req VerifyRequest
	body := http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	err := json.NewDecoder(body).Decode(&req)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return req, nil
	case errors.As(err, &tooLarge):
		return req, apperrors.Newf(apperrors.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge,
			"request body exceeds %d bytes", tooLarge.Limit)
	case errors.Is(err, io.EOF):
		return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "request body is required")
	default:
		return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "request body must be a JSON object with a text field")
	}
}

func (h *Handler) prefilterFor(r *http.Request) (bool, error) {
	s := r.URL.Query().Get("prefilter")
	if s == "" {
		return h.opts.Prefilter, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "prefilter must be a boolean, got %q", s)
	}
	return b, nil
}

func (h *Handler) observe(outcome string, resp VerifyResponse, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.ObserveVerdict(analytics.TransportHTTP, outcome, resp.Similarity, resp.Candidates, time.Since(start))
}

func (h *Handler) track(ctx context.Context, outcome string, resp VerifyResponse) {
	if h.collector == nil {
		return
	}
	event := analytics.VerificationEvent{
		Transport:   analytics.TransportHTTP,
		Outcome:     outcome,
		Verified:    resp.Verified,
		Similarity:  resp.Similarity,
		Candidates:  resp.Candidates,
		Cached:      resp.Cached,
		Prefiltered: resp.Prefiltered,
		LatencyMs:   resp.LatencyMs,
		Timestamp:   time.Now().UTC(),
		RequestID:   middleware.GetRequestID(ctx),
	}
	if resp.Post != nil {
		event.PostID = resp.Post.ID
	}
	h.collector.Track(event)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	if errors.Is(err, verifier.ErrNotLoaded) || errors.Is(err, verifier.ErrLoad) {
		err = apperrors.New(errors.Join(apperrors.ErrUnavailable, err), http.StatusServiceUnavailable, "corpus not loaded")
	}
	status := apperrors.HTTPStatusCode(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	h.writeError(w, status, apperrors.Message(err))
}
