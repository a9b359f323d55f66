package chunk

import (
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanBoilerplate strips boilerplate headers/footers/legal notices from raw
// page text, collapses whitespace runs to single spaces and trims. Returns
// "" for empty input. Idempotent on already-normalized text.
func (p Params) CleanBoilerplate(text string) string {
	if text == "" {
		return ""
	}
	for _, re := range p.boilerplate {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
