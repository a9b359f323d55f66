package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	pageXofYRe   = regexp.MustCompile(`(?i)page\s+\d+\s+of\s+\d+`)
	onlyNumberRe = regexp.MustCompile(`^\s*\d+\s*$`)
)

// CleanPage normalizes one page of extracted text: strips non-printable
// runes and the BOM, collapses whitespace, removes "Page X of Y" markers and
// drops pages that are nothing but a page number.
func CleanPage(text string) string {
	text = sanitizePrintable(text)
	text = pageXofYRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	if onlyNumberRe.MatchString(text) {
		return ""
	}
	return strings.TrimSpace(text)
}

// sanitizePrintable removes the BOM and non-printable runes, keeping common
// whitespace.
func sanitizePrintable(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\uFEFF' || r == unicode.ReplacementChar {
			continue
		}
		if r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		if !unicode.IsPrint(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
