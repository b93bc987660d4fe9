package timedtext

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	markupTagRe  = regexp.MustCompile(`<[^>]*>`)
	cueSettingRe = regexp.MustCompile(`\b(?:align|position|line|size|vertical|region):\S+`)
	multiSpaceRe = regexp.MustCompile(`[ \t]+`)
)

// entityReplacer decodes the five standard HTML entities. Platform
// transcripts frequently double-encode, so cleanText applies it twice.
var entityReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&amp;", "&",
)

// cleanText normalizes a raw cue body: entities decoded, markup stripped,
// zero-width/bidi and control characters removed, inline cue styling
// directives dropped, whitespace collapsed and trimmed. Entities are decoded
// before tag stripping so entity-encoded markup is removed as markup.
func cleanText(s string) string {
	s = entityReplacer.Replace(s)
	s = entityReplacer.Replace(s)
	s = markupTagRe.ReplaceAllString(s, "")
	s = cueSettingRe.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(' ')
		case isInvisible(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	s = multiSpaceRe.ReplaceAllString(b.String(), " ")
	return strings.TrimSpace(s)
}

// isInvisible reports zero-width characters, bidi control characters, and
// C0/C1 controls.
func isInvisible(r rune) bool {
	switch r {
	case '​', '‌', '‍', '‎', '‏', // zero-width + bidi marks
		'‪', '‫', '‬', '‭', '‮', // bidi embedding/override
		'⁠', '⁡', '⁢', '⁣', '⁤', // word joiner + invisibles
		'\uFEFF':
		return true
	}
	return r < 0x20 || (r >= 0x7f && r <= 0x9f)
}

// hasContent reports whether s contains at least one letter, number,
// punctuation, space, symbol, or mark rune. Decorative-only cues
// (e.g. pure control or private-use characters) fail this check.
func hasContent(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsPunct(r) ||
			unicode.IsSpace(r) || unicode.IsSymbol(r) || unicode.IsMark(r) {
			return true
		}
	}
	return false
}
