package chunk

import (
	"strings"

	"archrag/pkg/logger"
)

// Assembler runs one PageRecord through normalize -> tokenize -> window ->
// dedup -> quality and produces ChunkRecords. It holds only read-only state
// and may be shared across workers; per-run dedup state is passed in.
type Assembler struct {
	params Params
	codec  Codec
}

func NewAssembler(params Params, codec Codec) *Assembler {
	return &Assembler{params: params, codec: codec}
}

// lenCounter is implemented by codecs that memoize token-length lookups.
type lenCounter interface {
	Len(text string) int
}

func (a *Assembler) tokenLen(text string) int {
	if lc, ok := a.codec.(lenCounter); ok {
		return lc.Len(text)
	}
	ids, err := a.codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

// ChunkPage produces zero or more ChunkRecords for one page. Tokenizer
// failures degrade to zero chunks and are logged, never propagated.
func (a *Assembler) ChunkPage(rec PageRecord, dedup *Deduper) []ChunkRecord {
	text := a.params.CleanBoilerplate(rec.Text)
	if text == "" || a.params.IsBoilerplate(text) {
		return nil
	}

	ids, err := a.codec.Encode(text)
	if err != nil {
		logger.Warn("%s page %d: tokenize failed: %v", rec.DocID, rec.PageNumber, err)
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	slices, err := Windows(ids, a.params.AllowedTokens, a.params.Overlap)
	if err != nil {
		logger.Error(err, "%s page %d: windowing failed", rec.DocID, rec.PageNumber)
		return nil
	}

	var out []ChunkRecord
	for _, slice := range slices {
		piece, err := a.codec.Decode(slice)
		if err != nil {
			logger.Warn("%s page %d: decode failed: %v", rec.DocID, rec.PageNumber, err)
			continue
		}
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}

		hash, dup := dedup.Check(piece)
		if dup {
			continue
		}

		// Decoding can grow the token count past the window (tokenizer
		// round-trip is not length-preserving); re-window just that piece.
		if a.tokenLen(piece) > a.params.AllowedTokens {
			out = append(out, a.rechunk(rec, piece, dedup)...)
			continue
		}

		if a.params.IsQualityChunk(piece, a.tokenLen) {
			out = append(out, a.record(rec, piece, hash))
		}
	}
	return out
}

// rechunk re-windows an oversized decoded chunk at the same parameters and
// accepts its quality sub-pieces.
func (a *Assembler) rechunk(rec PageRecord, piece string, dedup *Deduper) []ChunkRecord {
	ids, err := a.codec.Encode(piece)
	if err != nil {
		return nil
	}
	slices, err := Windows(ids, a.params.AllowedTokens, a.params.Overlap)
	if err != nil {
		return nil
	}

	var out []ChunkRecord
	for _, slice := range slices {
		sub, err := a.codec.Decode(slice)
		if err != nil {
			continue
		}
		sub = strings.TrimSpace(sub)
		if sub == "" {
			continue
		}
		hash, dup := dedup.Check(sub)
		if dup {
			continue
		}
		if a.params.IsQualityChunk(sub, a.tokenLen) {
			out = append(out, a.record(rec, sub, hash))
		}
	}
	return out
}

func (a *Assembler) record(rec PageRecord, text, hash string) ChunkRecord {
	return ChunkRecord{
		DocID:     rec.DocID,
		File:      rec.File,
		Category:  rec.Category,
		PageSpan:  [2]int{rec.PageNumber, rec.PageNumber},
		Text:      text,
		ChunkHash: hash,
	}
}
