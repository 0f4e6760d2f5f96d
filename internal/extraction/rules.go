package extraction

import (
	"regexp"
	"strings"
	"unicode"
)

// rule pairs a pattern with the post-processor that turns its first capture into a value.
// A rule whose post-processor rejects the capture counts as no match.
type rule[T any] struct {
	pattern *regexp.Regexp
	accept  func(capture string) (T, bool)
}

// firstMatch runs an ordered cascade and returns the first accepted value
func firstMatch[T any](rules []rule[T], text string) (T, bool) {
	for _, r := range rules {
		m := r.pattern.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if v, ok := r.accept(m[1]); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

var reWhitespace = regexp.MustCompile(`[\s\p{Zs}]+`)

// normalize collapses whitespace runs, including line breaks, into single spaces
func normalize(text string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))
}

// nonEmpty accepts any capture that is not blank after trimming
func nonEmpty(capture string) (string, bool) {
	s := strings.TrimSpace(capture)
	return s, s != ""
}

// titleCase upper-cases every letter that follows a non-letter and lower-cases the rest
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && prevLetter:
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}
