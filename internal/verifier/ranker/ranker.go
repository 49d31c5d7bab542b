// Package ranker shortlists corpus records that share significant words with
// a query, so the expensive similarity scoring only runs on a bounded set.
package ranker

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/index"
)

// DefaultLimit is the number of candidates kept for scoring.
const DefaultLimit = 50

// Candidate is a record position and the number of query tokens it shares.
type Candidate struct {
	Position int `json:"position"`
	Shared   int `json:"shared"`
}

// Postings is the read side of the inverted index the ranker needs.
type Postings interface {
	Postings(token string) index.PostingList
}

// Rank counts, for every record, how many of tokens appear in it and returns
// at most limit candidates ordered by shared count descending. Equal counts
// are ordered by ascending corpus position, so earlier records win ties. A
// non-positive limit means DefaultLimit.
func Rank(ix Postings, tokens []string, limit int) []Candidate {
	if len(tokens) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	counts := make(map[int]int)
	for _, token := range tokens {
		for _, pos := range ix.Postings(token) {
			counts[pos]++
		}
	}
	if len(counts) == 0 {
		return nil
	}
	result := make([]Candidate, 0, len(counts))
	for pos, shared := range counts {
		result = append(result, Candidate{
			Position: pos,
			Shared:   shared,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Shared != result[j].Shared {
			return result[i].Shared > result[j].Shared
		}
		return result[i].Position < result[j].Position
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}
