package verifier

import (
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/index"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/normalizer"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/ranker"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/similarity"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/tokenizer"
)

// Result is the verdict for one query. Post is the best-scoring candidate
// even when Verified is false, and nil only when no record shares a
// significant word with the query.
type Result struct {
	Verified   bool           `json:"verified"`
	Post       *corpus.Record `json:"post"`
	Similarity float64        `json:"similarity"`
	Query      string         `json:"query"`
	Candidates int            `json:"candidates"`
}

// Match runs the two-phase matcher against ix. It is pure: the same index,
// text and options always give the same Result.
func Match(ix *index.Index, text string, opts Options) Result {
	res := Result{Query: text}
	normalized := normalizer.Normalize(text)
	tokens := tokenizer.SignificantWords(normalized)
	if len(tokens) == 0 {
		return res
	}
	candidates := ranker.Rank(ix, tokens, opts.MaxCandidates)
	if len(candidates) == 0 {
		return res
	}
	res.Candidates = len(candidates)

	queryGrams, queryTotal := similarity.Bigrams(normalized)
	bestPos, bestScore := -1, -1.0
	for _, c := range candidates {
		entry := ix.Entry(c.Position)
		grams, total := similarity.Bigrams(entry.Normalized)
		score := similarity.DiceCounts(queryGrams, queryTotal, grams, total)
		if score > bestScore {
			bestPos, bestScore = c.Position, score
		}
	}

	post := ix.Record(bestPos)
	res.Post = &post
	res.Similarity = bestScore
	res.Verified = bestScore >= opts.Threshold
	return res
}

// Verdict outcomes as reported by Outcome.
const (
	OutcomeVerified     = "verified"
	OutcomeUnverified   = "unverified"
	OutcomeNoCandidates = "no_candidates"
)

// Outcome classifies r for metrics and analytics.
func (r Result) Outcome() string {
	switch {
	case r.Verified:
		return OutcomeVerified
	case r.Candidates == 0:
		return OutcomeNoCandidates
	default:
		return OutcomeUnverified
	}
}
