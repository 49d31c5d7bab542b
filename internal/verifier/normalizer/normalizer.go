// Package normalizer canonicalises raw OCR text before it is indexed or
// compared. The same pipeline runs over corpus content at load time and over
// every query, so both sides of a comparison always see identical rules.
package normalizer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ocrConfusions maps glyphs that OCR engines commonly misread onto the letter
// they most likely stood for. Substitution is blind: legitimate digits in
// dates or counts are rewritten too.
var ocrConfusions = strings.NewReplacer(
	"|", "i",
	"0", "o",
	"1", "l",
	"5", "s",
)

var urlPattern = regexp.MustCompile(`[a-z][a-z0-9+.\-]*://\S+`)

// Normalize lowercases text, folds compatibility forms and diacritics,
// corrects common OCR confusions, strips URLs, replaces punctuation with
// spaces and collapses whitespace. It never fails and is idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = fold(text)
	text = strings.ToLower(text)
	text = ocrConfusions.Replace(text)
	text = urlPattern.ReplaceAllString(text, " ")

	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingSpace = true
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// fold decomposes compatibility characters (full-width letters, ligatures)
// and drops combining marks so "café" and "ｃａｆｅ" both become "cafe".
func fold(s string) string {
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	if folded, _, err := transform.String(t, s); err == nil {
		return folded
	}
	return s
}
