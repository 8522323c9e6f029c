package isnad

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/anatolykoptev/go-kit/strutil"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Arabic tashkeel ranges. Most are category Mn already; the explicit ranges
// cover Quranic annotation signs that are not.
var tashkeel = runes.Predicate(func(r rune) bool {
	switch {
	case r >= 0x0610 && r <= 0x061A,
		r >= 0x064B && r <= 0x065F,
		r == 0x0670,
		r >= 0x06D6 && r <= 0x06DC,
		r >= 0x06DF && r <= 0x06E4,
		r >= 0x06E7 && r <= 0x06E8,
		r >= 0x06EA && r <= 0x06ED:
		return true
	}
	return unicode.Is(unicode.Mn, r)
})

// Both transformers are stateless, so sharing them across goroutines is safe.
// A transform.Chain would not be.
var (
	stripMarks   = runes.Remove(tashkeel)
	unifyLetters = runes.Map(func(r rune) rune {
		switch r {
		case 'أ', 'إ', 'آ':
			return 'ا'
		case 'ئ', 'ى':
			return 'ي'
		case 'ؤ':
			return 'و'
		case 'ة':
			return 'ه'
		}
		return r
	})
)

var (
	parenRe = regexp.MustCompile(`(?s)\(.*?\)`)
	punctRe = regexp.MustCompile(`[.,،؛;:؟?!"'«»\-_/\\]`)
)

const waw = 'و'

// Normalize reduces a name (or any text) to the form used for every lookup:
// marks stripped, parentheticals and punctuation removed, hamza carriers and
// terminal letters unified, a fused leading waw dropped, whitespace collapsed.
// Normalize is total and idempotent.
func Normalize(text string) string {
	s, _, _ := transform.String(stripMarks, text)
	s = parenRe.ReplaceAllString(s, "")
	s = punctRe.ReplaceAllString(s, "")
	s, _, _ = transform.String(unifyLetters, s)
	s = stripLeadingWaw(strings.TrimLeftFunc(s, unicode.IsSpace))
	return strings.Join(strings.Fields(s), " ")
}

// stripLeadingWaw drops one conjunction waw glued to the next word. A second
// waw is left alone, otherwise "ووهب" would keep shrinking on every pass.
func stripLeadingWaw(s string) string {
	rest, ok := strings.CutPrefix(s, string(waw))
	if !ok || rest == "" {
		return s
	}
	next := []rune(rest)[0]
	if next == waw || unicode.IsSpace(next) {
		return s
	}
	return rest
}

// ContentKey returns the normalized prefix of a narration text used to match
// chains across corpora. ok is false when the prefix is shorter than minChars.
func ContentKey(text string, maxChars, minChars int) (key string, ok bool) {
	key = strutil.TruncateWith(Normalize(text), maxChars, "")
	if len([]rune(key)) < minChars {
		return "", false
	}
	return key, true
}

// Tokens splits a normalized name into its whitespace-delimited words.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}
