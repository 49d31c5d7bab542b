// Package similarity scores two normalised strings by the Dice coefficient
// over their overlapping character bigrams.
package similarity

// Bigrams returns the multiset of overlapping two-rune substrings of s as a
// count per bigram together with the total number of bigrams. Strings shorter
// than two runes have no bigrams.
func Bigrams(s string) (map[string]int, int) {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil, 0
	}
	counts := make(map[string]int, len(runes)-1)
	for i := range len(runes) - 1 {
		counts[string(runes[i:i+2])]++
	}
	return counts, len(runes) - 1
}

// Dice returns 2·|A∩B| / (|A|+|B|) where A and B are the bigram multisets of
// a and b and the intersection takes the minimum count per bigram. The result
// is in [0,1]; it is 0 when neither string has a bigram.
func Dice(a, b string) float64 {
	countsA, totalA := Bigrams(a)
	countsB, totalB := Bigrams(b)
	return DiceCounts(countsA, totalA, countsB, totalB)
}

// DiceCounts scores two precomputed bigram multisets. It lets callers that
// compare one query against many records build the query side once.
func DiceCounts(countsA map[string]int, totalA int, countsB map[string]int, totalB int) float64 {
	if totalA+totalB == 0 {
		return 0
	}
	if len(countsB) < len(countsA) {
		countsA, countsB = countsB, countsA
	}
	shared := 0
	for gram, na := range countsA {
		if nb, ok := countsB[gram]; ok {
			shared += min(na, nb)
		}
	}
	return 2 * float64(shared) / float64(totalA+totalB)
}
