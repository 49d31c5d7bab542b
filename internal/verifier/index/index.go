// Package index builds the immutable inverted index over a loaded corpus.
// Records are addressed by their integer position in corpus order; derived
// data lives in slices aligned with those positions and each token maps to the
// ascending list of positions containing it.
package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/normalizer"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/tokenizer"
)

// Index is safe for concurrent readers. Nothing mutates it after Build
// returns.
type Index struct {
	records  []corpus.Record
	entries  []Entry
	postings map[string]PostingList
	postingN int
}

// Build normalises and tokenises every record and appends its position to
// the posting list of each of its significant words. Positions are visited in
// ascending order, so every posting list is sorted and duplicate-free.
func Build(records []corpus.Record) *Index {
	ix := &Index{
		records:  records,
		entries:  make([]Entry, len(records)),
		postings: make(map[string]PostingList),
	}
	for pos, rec := range records {
		normalized := normalizer.Normalize(rec.Content)
		tokens := tokenizer.SignificantWords(normalized)
		ix.entries[pos] = Entry{
			Normalized: normalized,
			Tokens:     tokens,
		}
		for _, token := range tokens {
			ix.postings[token] = append(ix.postings[token], pos)
		}
		ix.postingN += len(tokens)
	}
	return ix
}

// Len returns the number of records.
func (ix *Index) Len() int {
	return len(ix.records)
}

// Postings returns the posting list for token, or nil when no record
// contains it. Callers must not modify the returned slice.
func (ix *Index) Postings(token string) PostingList {
	return ix.postings[token]
}

// Record returns the raw record at pos.
func (ix *Index) Record(pos int) corpus.Record {
	return ix.records[pos]
}

// Entry returns the derived data for the record at pos.
func (ix *Index) Entry(pos int) Entry {
	return ix.entries[pos]
}

// Terms returns the number of distinct tokens.
func (ix *Index) Terms() int {
	return len(ix.postings)
}

// Stats summarises the index.
func (ix *Index) Stats() Stats {
	s := Stats{
		Records:  len(ix.records),
		Terms:    len(ix.postings),
		Postings: ix.postingN,
	}
	for _, e := range ix.entries {
		if len(e.Tokens) == 0 {
			s.EmptyRecords++
		}
	}
	if s.Records > 0 {
		s.AvgTokens = float64(ix.postingN) / float64(s.Records)
	}
	return s
}

// TopTerms returns the n tokens that occur in the most records, most
// frequent first with ties in lexical order.
func (ix *Index) TopTerms(n int) []TermEntry {
	entries := make([]TermEntry, 0, len(ix.postings))
	for term, postings := range ix.postings {
		entries = append(entries, TermEntry{
			Term:    term,
			DocFreq: len(postings),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DocFreq != entries[j].DocFreq {
			return entries[i].DocFreq > entries[j].DocFreq
		}
		return entries[i].Term < entries[j].Term
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
