package utils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	slugInvalid = regexp.MustCompile(`[^\w\s-]`)
	slugDashes  = regexp.MustCompile(`[-\s]+`)
)

// Slugify lowercases, drops accents and punctuation, and joins words with hyphens.
func Slugify(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	for _, r := range decomposed {
		if r > unicode.MaxASCII {
			continue
		}
		b.WriteRune(r)
	}
	out := slugInvalid.ReplaceAllString(strings.ToLower(b.String()), "")
	out = slugDashes.ReplaceAllString(strings.TrimSpace(out), "-")
	return strings.Trim(out, "-_")
}
