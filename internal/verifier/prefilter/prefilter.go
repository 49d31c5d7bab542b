// Package prefilter holds the cheap check callers run before the full
// verification pipeline: text that never mentions the author is not worth
// matching.
package prefilter

// markers are lowercase ASCII substrings that identify the author by handle
// or by name.
var markers = []string{
	"realdonaldtrump",
	"donald j. trump",
	"donald j trump",
	"donald trump",
	"@potus",
	"truth social",
	"truthsocial",
}

// LooksLikeTrumpPost reports whether text contains any author marker,
// ignoring ASCII case. It does not allocate and needs no loaded corpus.
func LooksLikeTrumpPost(text string) bool {
	for _, m := range markers {
		if containsFold(text, m) {
			return true
		}
	}
	return false
}

// Markers returns a copy of the author markers.
func Markers() []string {
	out := make([]string, len(markers))
	copy(out, markers)
	return out
}

// containsFold reports whether lowerNeedle occurs in s when s is compared
// with ASCII letters folded to lower case. lowerNeedle must be lowercase.
func containsFold(s, lowerNeedle string) bool {
	n := len(lowerNeedle)
	if n == 0 {
		return true
	}
	for i := 0; i+n <= len(s); i++ {
		j := 0
		for j < n && toLower(s[i+j]) == lowerNeedle[j] {
			j++
		}
		if j == n {
			return true
		}
	}
	return false
}

func toLower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
