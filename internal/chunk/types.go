package chunk

import (
	"fmt"
	"regexp"
)

// PageRecord is one page of extracted text, as produced by the PDF
// extraction stage. Records are read once and never mutated.
type PageRecord struct {
	DocID      string `json:"doc_id"`
	File       string `json:"file"`
	Category   string `json:"category"`
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// ChunkRecord is one embedding-sized chunk with provenance metadata.
// PageSpan models a page range to allow future multi-page merges; today
// both ends are the originating page.
type ChunkRecord struct {
	DocID     string `json:"doc_id"`
	File      string `json:"file"`
	Category  string `json:"category"`
	PageSpan  [2]int `json:"page_span"`
	Text      string `json:"text"`
	ChunkHash string `json:"chunk_hash"`
}

// Codec tokenizes and detokenizes text. Both directions are fallible; the
// pipeline degrades failures to empty results instead of propagating them.
type Codec interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}

// Params holds the chunking parameters, immutable after construction.
type Params struct {
	AllowedTokens     int
	Overlap           int
	MinTokensPerChunk int
	MinCharLength     int
	RequireSentences  bool

	boilerplate []*regexp.Regexp
	meaningless []*regexp.Regexp
}

// NewParams validates the window invariants and compiles the pattern lists.
// Boilerplate patterns are applied case-insensitively in multi-line mode and
// in declared order; later patterns may match text exposed by earlier
// removals. Meaningless patterns stay case-sensitive so that the all-caps
// heading pattern keeps its meaning.
func NewParams(allowedTokens, overlap, minTokens, minChars int, requireSentences bool, boilerplate, meaningless []string) (Params, error) {
	if allowedTokens <= 0 {
		return Params{}, fmt.Errorf("allowed tokens must be > 0, got %d", allowedTokens)
	}
	if overlap < 0 || overlap >= allowedTokens {
		return Params{}, fmt.Errorf("overlap must be in [0, %d), got %d", allowedTokens, overlap)
	}

	p := Params{
		AllowedTokens:     allowedTokens,
		Overlap:           overlap,
		MinTokensPerChunk: minTokens,
		MinCharLength:     minChars,
		RequireSentences:  requireSentences,
	}
	for _, pat := range boilerplate {
		re, err := regexp.Compile(`(?im)` + pat)
		if err != nil {
			return Params{}, fmt.Errorf("boilerplate pattern %q: %w", pat, err)
		}
		p.boilerplate = append(p.boilerplate, re)
	}
	for _, pat := range meaningless {
		re, err := regexp.Compile(pat)
		if err != nil {
			return Params{}, fmt.Errorf("meaningless pattern %q: %w", pat, err)
		}
		p.meaningless = append(p.meaningless, re)
	}
	return p, nil
}
