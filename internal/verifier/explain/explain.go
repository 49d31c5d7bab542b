// Package explain breaks a verdict down into the signals moderators use to
// tune the threshold. It never changes a verdict; the Dice score remains the
// only deciding metric.
package explain

import (
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/normalizer"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/similarity"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/tokenizer"
	"github.com/hbollon/go-edlib"
)

// Explanation compares a query with the post its verdict points at.
type Explanation struct {
	NormalizedQuery string   `json:"normalized_query"`
	NormalizedPost  string   `json:"normalized_post,omitempty"`
	QueryTokens     []string `json:"query_tokens"`
	SharedTokens    []string `json:"shared_tokens"`
	MissingTokens   []string `json:"missing_tokens"`
	Dice            float64  `json:"dice"`
	JaroWinkler     float32  `json:"jaro_winkler"`
	Levenshtein     float32  `json:"levenshtein"`
	EditDistance    int      `json:"edit_distance"`
	Margin          float64  `json:"margin"`
}

// Explain describes res against its query. threshold is the value the
// verdict was decided with; Margin is the Dice score minus threshold.
func Explain(res verifier.Result, threshold float64) Explanation {
	query := normalizer.Normalize(res.Query)
	e := Explanation{
		NormalizedQuery: query,
		QueryTokens:     tokenizer.SignificantWords(query),
		SharedTokens:    []string{},
		MissingTokens:   []string{},
	}
	if res.Post == nil {
		e.MissingTokens = append(e.MissingTokens, e.QueryTokens...)
		e.Margin = -threshold
		return e
	}
	post := normalizer.Normalize(res.Post.Content)
	e.NormalizedPost = post

	postTokens := make(map[string]struct{})
	for _, t := range tokenizer.SignificantWords(post) {
		postTokens[t] = struct{}{}
	}
	for _, t := range e.QueryTokens {
		if _, ok := postTokens[t]; ok {
			e.SharedTokens = append(e.SharedTokens, t)
		} else {
			e.MissingTokens = append(e.MissingTokens, t)
		}
	}

	e.Dice = similarity.Dice(query, post)
	e.JaroWinkler = edlib.JaroWinklerSimilarity(query, post)
	e.EditDistance = edlib.LevenshteinDistance(query, post)
	if lev, err := edlib.StringsSimilarity(query, post, edlib.Levenshtein); err == nil {
		e.Levenshtein = lev
	}
	e.Margin = e.Dice - threshold
	return e
}
