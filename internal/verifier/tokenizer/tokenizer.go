// Package tokenizer derives the significant-word set used as the indexing and
// candidate-matching unit. Input is expected to be normalised already; words
// shorter than MinWordLength runes and common English function words are
// dropped.
package tokenizer

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// MinWordLength is the shortest word, in runes, that counts as significant.
const MinWordLength = 4

var stopWords = map[string]struct{}{
	"a": {}, "about": {}, "above": {}, "after": {}, "again": {}, "against": {},
	"all": {}, "almost": {}, "also": {}, "although": {}, "always": {}, "am": {},
	"among": {}, "an": {}, "and": {}, "another": {}, "any": {}, "anyone": {},
	"anything": {}, "are": {}, "around": {}, "as": {}, "at": {}, "be": {},
	"because": {}, "been": {}, "before": {}, "being": {}, "below": {}, "between": {},
	"both": {}, "but": {}, "by": {}, "can": {}, "cannot": {}, "could": {},
	"did": {}, "does": {}, "doing": {}, "done": {}, "down": {}, "during": {},
	"each": {}, "either": {}, "else": {}, "enough": {}, "even": {}, "ever": {},
	"every": {}, "few": {}, "for": {}, "from": {}, "further": {}, "had": {},
	"has": {}, "have": {}, "having": {}, "he": {}, "hence": {}, "her": {},
	"here": {}, "hers": {}, "herself": {}, "him": {}, "himself": {}, "his": {},
	"how": {}, "however": {}, "i": {}, "if": {}, "in": {}, "into": {},
	"is": {}, "it": {}, "its": {}, "itself": {}, "just": {}, "last": {},
	"least": {}, "less": {}, "like": {}, "many": {}, "may": {}, "maybe": {},
	"me": {}, "might": {}, "mine": {}, "more": {}, "most": {}, "much": {},
	"must": {}, "my": {}, "myself": {}, "neither": {}, "never": {}, "next": {},
	"no": {}, "none": {}, "nor": {}, "not": {}, "nothing": {}, "now": {},
	"of": {}, "off": {}, "often": {}, "on": {}, "once": {}, "only": {},
	"onto": {}, "or": {}, "other": {}, "others": {}, "otherwise": {}, "ought": {},
	"our": {}, "ours": {}, "ourselves": {}, "out": {}, "over": {}, "own": {},
	"perhaps": {}, "quite": {}, "rather": {}, "really": {}, "same": {}, "shall": {},
	"she": {}, "should": {}, "since": {}, "so": {}, "some": {}, "someone": {},
	"something": {}, "soon": {}, "still": {}, "such": {}, "than": {}, "that": {},
	"the": {}, "their": {}, "theirs": {}, "them": {}, "themselves": {}, "then": {},
	"there": {}, "therefore": {}, "these": {}, "they": {}, "this": {}, "those": {},
	"though": {}, "through": {}, "thus": {}, "till": {}, "to": {}, "together": {},
	"too": {}, "toward": {}, "towards": {}, "under": {}, "until": {}, "unless": {},
	"up": {}, "upon": {}, "us": {}, "very": {}, "was": {}, "we": {},
	"well": {}, "were": {}, "what": {}, "whatever": {}, "when": {}, "whenever": {},
	"where": {}, "whereas": {}, "wherever": {}, "whether": {}, "which": {}, "while": {},
	"who": {}, "whoever": {}, "whom": {}, "whose": {}, "why": {}, "will": {},
	"with": {}, "within": {}, "without": {}, "would": {}, "yet": {}, "you": {},
	"your": {}, "yours": {}, "yourself": {}, "yourselves": {}, "whereby": {}, "went": {},
	"come": {}, "came": {}, "make": {}, "made": {}, "said": {}, "says": {},
	"going": {}, "gets": {}, "got": {}, "want": {}, "wants": {}, "know": {},
}

// SignificantWords splits normalised text on whitespace and returns the
// sorted, de-duplicated set of words that are at least MinWordLength runes
// long and not stop words. An empty result is valid.
func SignificantWords(normalized string) []string {
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(words))
	tokens := make([]string, 0, len(words)/2)
	for _, word := range words {
		if utf8.RuneCountInString(word) < MinWordLength {
			continue
		}
		if IsStopWord(word) {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		tokens = append(tokens, word)
	}
	sort.Strings(tokens)
	return tokens
}

// IsStopWord reports whether word is in the fixed stop-word set.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// StopWordCount returns the size of the stop-word set.
func StopWordCount() int {
	return len(stopWords)
}
