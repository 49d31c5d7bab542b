package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/service/cache"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCorpus = corpus.Static{
	{ID: "fox", Content: "The quick brown fox jumps over the lazy dog", URL: "https://example.test/fox"},
	{ID: "econ", Content: "Breaking news about the economy today", URL: "https://example.test/econ"},
}

type fixture struct {
	mux        *http.ServeMux
	metrics    *metrics.Metrics
	aggregator *analytics.Aggregator
}

func newFixture(t *testing.T, load bool, verdictCache *cache.VerdictCache, opts Options) *fixture {
	t.Helper()
	v := verifier.New(testCorpus, verifier.DefaultOptions())
	if load {
		require.NoError(t, v.Load(context.Background()))
	}
	m := metrics.New(prometheus.NewRegistry())
	agg := analytics.NewAggregator()
	collector := analytics.NewCollector(nil, agg, 0)
	collector.Start(context.Background())
	t.Cleanup(collector.Close)

	mux := http.NewServeMux()
	New(v, verdictCache, collector, m, opts).Register(mux)
	return &fixture{mux: mux, metrics: m, aggregator: agg}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, r)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestVerifyVerified(t *testing.T) {
	f := newFixture(t, true, nil, Options{})

	rec := f.do(http.MethodPost, "/api/v1/verify", `{"text":"Break|ng news ab0ut the ec0n0my t0day"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeBody[VerifyResponse](t, rec)
	assert.True(t, resp.Verified)
	require.NotNil(t, resp.Post)
	assert.Equal(t, "econ", resp.Post.ID)
	assert.Equal(t, "Break|ng news ab0ut the ec0n0my t0day", resp.Query)
	assert.False(t, resp.Cached)
	assert.False(t, resp.Prefiltered)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VerificationsTotal.WithLabelValues("http", "verified")))
	stats := f.aggregator.Stats()
	assert.Equal(t, int64(1), stats.Verified)
	assert.Equal(t, []analytics.PostCount{{PostID: "econ", Count: 1}}, stats.TopPosts)
}

func TestVerifyNoCandidates(t *testing.T) {
	f := newFixture(t, true, nil, Options{})

	rec := f.do(http.MethodPost, "/api/v1/verify", `{"text":"completely unrelated text about something else entirely"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, false, raw["verified"])
	assert.Nil(t, raw["post"])
	assert.Equal(t, 0.0, raw["similarity"])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VerificationsTotal.WithLabelValues("http", "no_candidates")))
}

func TestVerifyEmptyText(t *testing.T) {
	f := newFixture(t, true, nil, Options{})

	rec := f.do(http.MethodPost, "/api/v1/verify", `{"text":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[VerifyResponse](t, rec)
	assert.False(t, resp.Verified)
	assert.Zero(t, resp.Similarity)
}

func TestVerifyBadRequests(t *testing.T) {
	f := newFixture(t, true, nil, Options{MaxBodyBytes: 64})

	tests := []struct {
		name   string
		target string
		body   string
		status int
		msg    string
	}{
		{"empty body", "/api/v1/verify", "", http.StatusBadRequest, "request body is required"},
		{"not json", "/api/v1/verify", "text=hello", http.StatusBadRequest, "request body must be a JSON object with a text field"},
		{"too large", "/api/v1/verify", `{"text":"` + strings.Repeat("a", 100) + `"}`, http.StatusRequestEntityTooLarge, "request body exceeds 64 bytes"},
		{"bad prefilter flag", "/api/v1/verify?prefilter=maybe", `{"text":"x"}`, http.StatusBadRequest, `prefilter must be a boolean, got "maybe"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, decodeBody[map[string]string](t, rec)["error"])
		})
	}
}

func TestVerifyBeforeLoad(t *testing.T) {
	f := newFixture(t, false, nil, Options{})

	rec := f.do(http.MethodPost, "/api/v1/verify", `{"text":"The quick brown fox"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Equal(t, "corpus not loaded", decodeBody[map[string]string](t, rec)["error"])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VerificationsTotal.WithLabelValues("http", "error")))
	assert.Zero(t, f.aggregator.Stats().Total)
}

func TestVerifyPrefilter(t *testing.T) {
	f := newFixture(t, true, nil, Options{Prefilter: true})

	rec := f.do(http.MethodPost, "/api/v1/verify", `{"text":"Breaking news about the economy today"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[VerifyResponse](t, rec)
	assert.True(t, resp.Prefiltered)
	assert.False(t, resp.Verified)
	assert.Nil(t, resp.Post)

	rec = f.do(http.MethodPost, "/api/v1/verify?prefilter=false", `{"text":"Breaking news about the economy today"}`)
	resp = decodeBody[VerifyResponse](t, rec)
	assert.False(t, resp.Prefiltered)
	assert.True(t, resp.Verified)

	rec = f.do(http.MethodPost, "/api/v1/verify", `{"text":"Donald J. Trump @realDonaldTrump Breaking news about the economy today"}`)
	resp = decodeBody[VerifyResponse](t, rec)
	assert.False(t, resp.Prefiltered)

	assert.Equal(t, int64(1), f.aggregator.Stats().Prefiltered)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VerificationsTotal.WithLabelValues("http", "prefiltered")))
}

type memStore struct{ data map[string][]byte }

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return nil, redis.Nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(context.Context, string) (int64, error) {
	n := int64(len(s.data))
	s.data = map[string][]byte{}
	return n, nil
}

func TestVerifyCached(t *testing.T) {
	store := &memStore{data: map[string][]byte{}}
	f := newFixture(t, true, cache.New(store, time.Minute, verifier.DefaultThreshold), Options{})

	first := decodeBody[VerifyResponse](t, f.do(http.MethodPost, "/api/v1/verify", `{"text":"The quick brown fox jumps over the lazy dog"}`))
	second := decodeBody[VerifyResponse](t, f.do(http.MethodPost, "/api/v1/verify", `{"text":"THE QUICK BROWN FOX JUMPS OVER THE LAZY DOG"}`))
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Post.ID, second.Post.ID)
	assert.Equal(t, "THE QUICK BROWN FOX JUMPS OVER THE LAZY DOG", second.Query)

	stats := decodeBody[cache.Stats](t, f.do(http.MethodGet, "/api/v1/cache/stats", ""))
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, "closed", stats.Breaker)

	rec := f.do(http.MethodPost, "/api/v1/cache/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"invalidated","keys_deleted":1}`, rec.Body.String())
	assert.Equal(t, int64(1), f.aggregator.Stats().CacheHits)
}

func TestWriteAppErrorCorpusFailures(t *testing.T) {
	h := New(nil, nil, nil, nil, Options{})
	tests := []struct {
		name string
		err  error
	}{
		{"not loaded", verifier.ErrNotLoaded},
		{"load failed", fmt.Errorf("%w: file: %w", verifier.ErrLoad, errors.New("permission denied"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeAppError(rec, tt.err)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.Equal(t, "5", rec.Header().Get("Retry-After"))
			assert.Equal(t, "corpus not loaded", decodeBody[map[string]string](t, rec)["error"])
		})
	}

	rec := httptest.NewRecorder()
	h.writeAppError(rec, errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCacheEndpointsDisabled(t *testing.T) {
	f := newFixture(t, true, nil, Options{})

	rec := f.do(http.MethodGet, "/api/v1/cache/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"disabled"}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExplain(t *testing.T) {
	f := newFixture(t, true, nil, Options{Prefilter: true})

	rec := f.do(http.MethodPost, "/api/v1/explain", `{"text":"a lazy afternoon"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ExplainResponse](t, rec)
	assert.False(t, resp.Result.Verified)
	require.NotNil(t, resp.Result.Post)
	assert.Equal(t, "fox", resp.Result.Post.ID)
	assert.Equal(t, []string{"lazy"}, resp.Explanation.SharedTokens)
	assert.Equal(t, []string{"afternoon"}, resp.Explanation.MissingTokens)
	assert.InDelta(t, resp.Result.Similarity, resp.Explanation.Dice, 1e-9)
	assert.Less(t, resp.Explanation.Margin, 0.0)
}

func TestPrefilterEndpoint(t *testing.T) {
	f := newFixture(t, true, nil, Options{})

	rec := f.do(http.MethodGet, "/api/v1/prefilter?text=Donald+J.+Trump+%40realDonaldTrump", "")
	assert.JSONEq(t, `{"looks_like_post":true}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/v1/prefilter?text=lunch+at+noon", "")
	assert.JSONEq(t, `{"looks_like_post":false}`, rec.Body.String())
}

func TestCorpus(t *testing.T) {
	f := newFixture(t, true, nil, Options{})

	rec := f.do(http.MethodGet, "/api/v1/corpus?top=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[CorpusResponse](t, rec)
	assert.Equal(t, "loaded", resp.State)
	assert.Equal(t, 2, resp.Records)
	assert.Equal(t, verifier.DefaultThreshold, resp.Threshold)
	assert.Equal(t, 50, resp.MaxCandidates)
	assert.Len(t, resp.TopTerms, 2)
	assert.Equal(t, tokenizer.StopWordCount(), resp.StopWords)
	assert.Contains(t, resp.Markers, "realdonaldtrump")

	rec = f.do(http.MethodGet, "/api/v1/corpus?top=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCorpusBeforeLoad(t *testing.T) {
	f := newFixture(t, false, nil, Options{})

	rec := f.do(http.MethodGet, "/api/v1/corpus", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]any
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&raw))
	assert.Equal(t, "unloaded", raw["state"])
	assert.Equal(t, []any{}, raw["top_terms"])
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, true, nil, Options{})
	rec := f.do(http.MethodGet, "/api/v1/verify", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
