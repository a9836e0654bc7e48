package playback

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minSpeakableRunes is the shortest sanitized text worth synthesizing.
const minSpeakableRunes = 2

const safePunctuation = `.,!?'"-:;()`

// Sanitize drops characters outside letters, digits, whitespace, and a small
// punctuation set, then collapses whitespace. Text with no letters or digits
// left sanitizes to "".
func Sanitize(text string) string {
	var (
		b     strings.Builder
		words bool
	)
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			words = true
			b.WriteRune(r)
		case unicode.IsSpace(r), strings.ContainsRune(safePunctuation, r):
			b.WriteRune(r)
		}
	}
	if !words {
		return ""
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Speakable reports whether sanitized text is long enough to synthesize.
func Speakable(clean string) bool {
	return utf8.RuneCountInString(clean) >= minSpeakableRunes
}
