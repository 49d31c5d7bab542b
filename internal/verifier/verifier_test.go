package verifier_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/index"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/normalizer"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/similarity"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	foxContent     = "The quick brown fox jumps over the lazy dog"
	economyContent = "Breaking news about the economy today"
)

func loaded(t *testing.T, records ...corpus.Record) *verifier.Verifier {
	t.Helper()
	v := verifier.New(corpus.Static(records), verifier.DefaultOptions())
	require.NoError(t, v.Load(context.Background()))
	return v
}

func TestFindMatchCaseAndSpacingVariation(t *testing.T) {
	v := loaded(t, corpus.Record{ID: "fox", Content: foxContent})

	res, err := v.FindMatch("  THE quick   Brown fox\tjumps over THE lazy dog ")
	require.NoError(t, err)
	assert.True(t, res.Verified)
	require.NotNil(t, res.Post)
	assert.Equal(t, "fox", res.Post.ID)
	assert.GreaterOrEqual(t, res.Similarity, 0.95)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, verifier.OutcomeVerified, res.Outcome())
}

func TestFindMatchUnrelatedText(t *testing.T) {
	v := loaded(t, corpus.Record{ID: "fox", Content: foxContent})

	res, err := v.FindMatch("completely unrelated text about something else entirely")
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Nil(t, res.Post)
	assert.Zero(t, res.Similarity)
	assert.Zero(t, res.Candidates)
	assert.Equal(t, verifier.OutcomeNoCandidates, res.Outcome())
}

func TestFindMatchOCRDigitNoise(t *testing.T) {
	v := loaded(t, corpus.Record{ID: "econ", Content: economyContent})

	res, err := v.FindMatch("Break|ng news ab0ut the ec0n0my t0day")
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Greater(t, res.Similarity, verifier.DefaultThreshold)
	require.NotNil(t, res.Post)
	assert.Equal(t, "econ", res.Post.ID)
}

func TestFindMatchEmptyQuery(t *testing.T) {
	v := loaded(t, corpus.Record{ID: "fox", Content: foxContent})

	for _, q := range []string{"", "   ", "!!! ???", "a an the of"} {
		res, err := v.FindMatch(q)
		require.NoError(t, err, q)
		assert.False(t, res.Verified, q)
		assert.Zero(t, res.Similarity, q)
		assert.Nil(t, res.Post, q)
		assert.Equal(t, q, res.Query)
	}
}

func TestFindMatchBelowThresholdKeepsBestPost(t *testing.T) {
	v := loaded(t, corpus.Record{ID: "fox", Content: foxContent})

	res, err := v.FindMatch("a lazy afternoon")
	require.NoError(t, err)
	assert.False(t, res.Verified)
	require.NotNil(t, res.Post)
	assert.Equal(t, "fox", res.Post.ID)
	assert.Greater(t, res.Similarity, 0.0)
	assert.Less(t, res.Similarity, verifier.DefaultThreshold)
	assert.Equal(t, verifier.OutcomeUnverified, res.Outcome())
}

func TestFindMatchEqualScoresPreferEarlierRecord(t *testing.T) {
	v := loaded(t,
		corpus.Record{ID: "first", Content: economyContent},
		corpus.Record{ID: "second", Content: economyContent},
	)

	res, err := v.FindMatch(economyContent)
	require.NoError(t, err)
	require.NotNil(t, res.Post)
	assert.Equal(t, "first", res.Post.ID)
	assert.Equal(t, 2, res.Candidates)
}

func TestFindMatchSkipsRecordsWithoutWords(t *testing.T) {
	v := loaded(t,
		corpus.Record{ID: "media", Content: "", Media: []string{"a.jpg"}},
		corpus.Record{ID: "econ", Content: economyContent},
	)

	res, err := v.FindMatch(economyContent)
	require.NoError(t, err)
	assert.Equal(t, "econ", res.Post.ID)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, v.Stats().EmptyRecords)
}

func TestFindMatchCustomThreshold(t *testing.T) {
	v := verifier.New(corpus.Static{{ID: "fox", Content: foxContent}}, verifier.Options{Threshold: 0.1})
	require.NoError(t, v.Load(context.Background()))

	res, err := v.FindMatch("a lazy afternoon")
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestFindMatchThresholdIsInclusive(t *testing.T) {
	const query = "a lazy afternoon"
	score := similarity.Dice(normalizer.Normalize(query), normalizer.Normalize(foxContent))
	require.Greater(t, score, 0.0)

	at := verifier.New(corpus.Static{{ID: "fox", Content: foxContent}}, verifier.Options{Threshold: score})
	require.NoError(t, at.Load(context.Background()))
	res, err := at.FindMatch(query)
	require.NoError(t, err)
	assert.Equal(t, score, res.Similarity)
	assert.True(t, res.Verified, "a score equal to the threshold is verified")

	above := verifier.New(corpus.Static{{ID: "fox", Content: foxContent}}, verifier.Options{Threshold: math.Nextafter(score, 1)})
	require.NoError(t, above.Load(context.Background()))
	res, err = above.FindMatch(query)
	require.NoError(t, err)
	assert.False(t, res.Verified)
	require.NotNil(t, res.Post)
	assert.Equal(t, "fox", res.Post.ID)
}

func TestFindMatchIsDeterministic(t *testing.T) {
	records := []corpus.Record{
		{ID: "1", Content: foxContent},
		{ID: "2", Content: economyContent},
		{ID: "3", Content: "The lazy dog sleeps through the economy news"},
		{ID: "4", Content: "Quick news: the brown dog jumps"},
	}
	queries := []string{foxContent, "BREAKING N3WS AB0UT THE EC0N0MY", "lazy economy", "", "nothing shared here"}

	first := loaded(t, records...)
	second := loaded(t, records...)
	for _, q := range queries {
		want, err := first.FindMatch(q)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			got, err := first.FindMatch(q)
			require.NoError(t, err)
			assert.Equal(t, want, got, "repeated query %q", q)
		}
		got, err := second.FindMatch(q)
		require.NoError(t, err)
		assert.Equal(t, want, got, "query %q against a second load", q)
	}
}

func TestRepeatedLoadKeepsIndex(t *testing.T) {
	src := &countingSource{records: []corpus.Record{
		{ID: "1", Content: "Tariffs on steel"},
		{ID: "2", Content: "More tariffs on cars"},
		{ID: "3", Content: ""},
	}}
	v := verifier.New(src, verifier.DefaultOptions())
	require.NoError(t, v.Load(context.Background()))
	stats, terms := v.Stats(), v.TopTerms(0)

	require.NoError(t, v.Load(context.Background()))
	assert.Equal(t, stats, v.Stats())
	assert.Equal(t, terms, v.TopTerms(0))

	fresh := verifier.New(corpus.Static(src.records), verifier.DefaultOptions())
	require.NoError(t, fresh.Load(context.Background()))
	assert.Equal(t, stats.Stats, fresh.Stats().Stats, "an independent load builds the same index")
	assert.Equal(t, terms, fresh.TopTerms(0))
}

func TestFindMatchBeforeLoad(t *testing.T) {
	v := verifier.New(corpus.Static{{ID: "fox", Content: foxContent}}, verifier.DefaultOptions())

	res, err := v.FindMatch(foxContent)
	assert.ErrorIs(t, err, verifier.ErrNotLoaded)
	assert.False(t, res.Verified)
	assert.Equal(t, verifier.StateUnloaded, v.State())
	assert.Nil(t, v.TopTerms(5))

	st := v.Stats()
	assert.Equal(t, "unloaded", st.State)
	assert.Equal(t, "static", st.Source)
	assert.Zero(t, st.Records)
}

type countingSource struct {
	calls   atomic.Int32
	failFor int32
	release chan struct{}
	records []corpus.Record
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Load(ctx context.Context) ([]corpus.Record, error) {
	n := s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if n <= s.failFor {
		return nil, fmt.Errorf("attempt %d: %w", n, errors.New("connection refused"))
	}
	return s.records, nil
}

func TestLoadIsIdempotent(t *testing.T) {
	src := &countingSource{records: []corpus.Record{{ID: "fox", Content: foxContent}}}
	v := verifier.New(src, verifier.DefaultOptions())

	require.NoError(t, v.Load(context.Background()))
	require.NoError(t, v.Load(context.Background()))
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, verifier.StateLoaded, v.State())
}

func TestConcurrentLoadSharesOneRead(t *testing.T) {
	src := &countingSource{
		release: make(chan struct{}),
		records: []corpus.Record{{ID: "fox", Content: foxContent}},
	}
	v := verifier.New(src, verifier.DefaultOptions())

	const callers = 16
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		errs    = make([]error, callers)
	)
	started.Add(callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			errs[i] = v.Load(context.Background())
		}(i)
	}
	started.Wait()
	close(src.release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestLoadFailureCanBeRetried(t *testing.T) {
	src := &countingSource{
		failFor: 1,
		records: []corpus.Record{{ID: "fox", Content: foxContent}},
	}
	v := verifier.New(src, verifier.DefaultOptions())

	err := v.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, verifier.ErrLoad)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, verifier.StateUnloaded, v.State())

	_, err = v.FindMatch(foxContent)
	assert.ErrorIs(t, err, verifier.ErrNotLoaded)

	require.NoError(t, v.Load(context.Background()))
	assert.Equal(t, int32(2), src.calls.Load())
	res, err := v.FindMatch(foxContent)
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestLoadMalformedCorpus(t *testing.T) {
	v := verifier.New(corpus.Static{{Content: "no id"}}, verifier.DefaultOptions())

	err := v.Load(context.Background())
	assert.ErrorIs(t, err, verifier.ErrLoad)
	assert.ErrorIs(t, err, corpus.ErrMalformed)
}

func TestLoadCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := verifier.New(corpus.Static{{ID: "fox", Content: foxContent}}, verifier.DefaultOptions())

	err := v.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, verifier.StateUnloaded, v.State())
}

func TestConcurrentFindMatch(t *testing.T) {
	v := loaded(t,
		corpus.Record{ID: "fox", Content: foxContent},
		corpus.Record{ID: "econ", Content: economyContent},
	)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, want := foxContent, "fox"
			if i%2 == 1 {
				q, want = economyContent, "econ"
			}
			res, err := v.FindMatch(q)
			if assert.NoError(t, err) && assert.NotNil(t, res.Post) {
				assert.Equal(t, want, res.Post.ID)
			}
		}(i)
	}
	wg.Wait()
}

func TestStatsAndTopTerms(t *testing.T) {
	v := loaded(t,
		corpus.Record{ID: "1", Content: "Tariffs on steel"},
		corpus.Record{ID: "2", Content: "More tariffs on cars"},
	)

	st := v.Stats()
	assert.Equal(t, "loaded", st.State)
	assert.Equal(t, 2, st.Records)
	assert.False(t, st.LoadedAt.IsZero())
	assert.Equal(t, []index.TermEntry{{Term: "tariffs", DocFreq: 2}}, v.TopTerms(1))
}

func TestOptionsFromConfig(t *testing.T) {
	assert.Equal(t, verifier.DefaultOptions(), verifier.OptionsFromConfig(config.VerifierConfig{}))

	opts := verifier.OptionsFromConfig(config.VerifierConfig{Threshold: 0.8, MaxCandidates: 10})
	assert.Equal(t, 0.8, opts.Threshold)
	assert.Equal(t, 10, opts.MaxCandidates)
}

func BenchmarkFindMatch(b *testing.B) {
	records := make([]corpus.Record, 10000)
	for i := range records {
		records[i] = corpus.Record{
			ID:      fmt.Sprint(i),
			Content: fmt.Sprintf("The economy is booming in district %d and tariffs on country %d are working", i, i%40),
		}
	}
	v := verifier.New(corpus.Static(records), verifier.DefaultOptions())
	require.NoError(b, v.Load(context.Background()))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = v.FindMatch("The ec0nomy is b00ming in district 4217 and tariffs on country 17 are working")
	}
}
