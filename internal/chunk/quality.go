package chunk

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	nonContentRe = regexp.MustCompile(`^[\d\W\s]+$`)
	sentenceRe   = regexp.MustCompile(`[.!?]+`)
)

// minimum fraction of alphabetic characters for text to count as prose
const minAlphaRatio = 0.3

// IsBoilerplate reports whether text is too short, matches a meaningless
// pattern, or is mostly non-alphabetic. These are cheap heuristics meant to
// catch header/footer noise and OCR garbage; thresholds are tuned constants,
// not statistics.
func (p Params) IsBoilerplate(text string) bool {
	if len(strings.TrimSpace(text)) < 10 {
		return true
	}
	for _, re := range p.meaningless {
		if re.MatchString(text) {
			return true
		}
	}
	alpha := 0
	total := 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	return float64(alpha)/float64(total) < minAlphaRatio
}

// IsQualityChunk reports whether a decoded chunk is worth emitting.
// tokenLen must return the token count of the text (0 on tokenizer failure).
// Chunks longer than 200 characters must split into at least two
// sentence-like segments; this rejects long sentence-less runs such as
// garbled OCR or tables, and can be disabled for bullet-heavy corpora.
func (p Params) IsQualityChunk(text string, tokenLen func(string) int) bool {
	if text == "" {
		return false
	}
	if tokenLen(text) < p.MinTokensPerChunk {
		return false
	}
	if len(strings.TrimSpace(text)) < p.MinCharLength {
		return false
	}
	if p.IsBoilerplate(text) {
		return false
	}
	if nonContentRe.MatchString(text) {
		return false
	}
	if p.RequireSentences && len(text) > 200 {
		if len(sentenceRe.Split(text, -1)) < 2 {
			return false
		}
	}
	return true
}
