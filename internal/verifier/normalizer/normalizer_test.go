package normalizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"case and spacing", "  The QUICK   brown\tfox\n", "the quick brown fox"},
		{"punctuation becomes space", "fake-news!!! media,,,", "fake news media"},
		{"pipe read as i", "Break|ng", "breaking"},
		{"zero read as o", "ec0n0my t0day", "economy today"},
		{"one read as l", "wi1d", "wild"},
		{"five read as s", "5ad!", "sad"},
		{"digits substituted blindly", "January 2015", "january 2ols"},
		{"url stripped", "see https://truthsocial.com/@realDonaldTrump/1 now", "see now"},
		{"diacritics folded", "Café Müller", "cafe muller"},
		{"full width folded", "ＴＲＵＴＨ", "truth"},
		{"ligature folded", "ﬁre", "fire"},
		{"non latin letters kept", "Привет мир", "привет мир"},
		{"emoji dropped", "great 🇺🇸 day", "great day"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeOutputShape(t *testing.T) {
	out := Normalize("  Hello,   WORLD!!  https://x.com/a  #MAGA  ")
	assert.Equal(t, "hello world maga", out)
	assert.False(t, strings.HasPrefix(out, " "))
	assert.False(t, strings.HasSuffix(out, " "))
	assert.NotContains(t, out, "  ")
}

var textGen = rapid.StringOfN(rapid.SampledFrom([]rune(
	"abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 |.,!?-:/@#éèüñç\t\n",
)), 0, 120, -1)

func TestNormalizeIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := textGen.Draw(t, "text")
		once := Normalize(s)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent: %q -> %q -> %q", s, once, twice)
		}
	})
}

func TestNormalizeNoEdgeOrDoubleSpaces(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		out := Normalize(textGen.Draw(t, "text"))
		if strings.HasPrefix(out, " ") || strings.HasSuffix(out, " ") || strings.Contains(out, "  ") {
			t.Fatalf("bad spacing in %q", out)
		}
		if out != strings.ToLower(out) {
			t.Fatalf("output not lowercase: %q", out)
		}
	})
}

func BenchmarkNormalize(b *testing.B) {
	text := strings.Repeat("Donald J. Trump @realDonaldTrump · The FAKE NEWS Media is w0rking 0vertime! https://t.co/abc ", 8)
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = Normalize(text)
	}
}
