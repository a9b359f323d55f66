package chunk

import (
	"errors"
	"strings"
	"testing"
)

// runeCodec treats every rune as one token, which makes window boundaries
// deterministic in tests.
type runeCodec struct{}

func (runeCodec) Encode(text string) ([]int, error) {
	rs := []rune(text)
	ids := make([]int, len(rs))
	for i, r := range rs {
		ids[i] = int(r)
	}
	return ids, nil
}

func (runeCodec) Decode(ids []int) (string, error) {
	rs := make([]rune, len(ids))
	for i, id := range ids {
		rs[i] = rune(id)
	}
	return string(rs), nil
}

type failingCodec struct{}

func (failingCodec) Encode(string) ([]int, error) { return nil, errors.New("encode failed") }
func (failingCodec) Decode([]int) (string, error) { return "", errors.New("decode failed") }

// inflatingCodec grows text on every decode, forcing the oversized-chunk
// re-window path.
type inflatingCodec struct{ runeCodec }

func (c inflatingCodec) Decode(ids []int) (string, error) {
	s, err := c.runeCodec.Decode(ids)
	if err != nil {
		return "", err
	}
	return s + strings.Repeat("x", 10), nil
}

func TestChunkPage_EndToEnd(t *testing.T) {
	params, err := NewParams(500, 60, 50, 100, true,
		[]string{`page \d+ of \d+`}, defaultMeaningless)
	if err != nil {
		t.Fatalf("NewParams() error = %v", err)
	}
	asm := NewAssembler(params, runeCodec{})

	page := PageRecord{
		DocID:      "structures-vol1",
		File:       "structures-vol1.pdf",
		Category:   "engineering",
		PageNumber: 3,
		Text:       "Page 3 of 10 " + strings.Repeat("A", 50) + ". " + strings.Repeat("B", 60) + ".",
	}

	dedup := NewDeduper()
	got := asm.ChunkPage(page, dedup)
	if len(got) != 1 {
		t.Fatalf("ChunkPage() produced %d chunks, want 1", len(got))
	}

	rec := got[0]
	if !strings.HasPrefix(rec.Text, strings.Repeat("A", 50)) {
		t.Errorf("chunk text %q does not start with the cleaned page text", rec.Text)
	}
	if strings.Contains(rec.Text, "Page 3 of 10") {
		t.Errorf("boilerplate survived cleaning: %q", rec.Text)
	}
	if rec.PageSpan != [2]int{3, 3} {
		t.Errorf("PageSpan = %v, want [3 3]", rec.PageSpan)
	}
	if rec.ChunkHash != HashText(rec.Text) {
		t.Errorf("ChunkHash = %q, want hash of the chunk text", rec.ChunkHash)
	}
	if rec.DocID != page.DocID || rec.Category != page.Category || rec.File != page.File {
		t.Errorf("chunk metadata %+v does not match page %+v", rec, page)
	}

	// the same page seen again yields nothing
	if again := asm.ChunkPage(page, dedup); len(again) != 0 {
		t.Errorf("duplicate page produced %d chunks, want 0", len(again))
	}
}

func TestChunkPage_EmptyAndBoilerplatePages(t *testing.T) {
	params, err := NewParams(500, 60, 5, 5, false,
		[]string{`page \d+ of \d+`}, defaultMeaningless)
	if err != nil {
		t.Fatalf("NewParams() error = %v", err)
	}
	asm := NewAssembler(params, runeCodec{})
	dedup := NewDeduper()

	for _, text := range []string{"", "   ", "Page 7 of 20", "TABLE OF CONTENTS"} {
		page := PageRecord{DocID: "d", PageNumber: 1, Text: text}
		if got := asm.ChunkPage(page, dedup); len(got) != 0 {
			t.Errorf("page %q produced %d chunks, want 0", text, len(got))
		}
	}
}

func TestChunkPage_TokenizerFailure(t *testing.T) {
	params, err := NewParams(500, 60, 1, 1, false, nil, nil)
	if err != nil {
		t.Fatalf("NewParams() error = %v", err)
	}
	asm := NewAssembler(params, failingCodec{})

	page := PageRecord{DocID: "d", PageNumber: 1, Text: "some perfectly fine page text"}
	if got := asm.ChunkPage(page, NewDeduper()); len(got) != 0 {
		t.Errorf("tokenizer failure produced %d chunks, want 0", len(got))
	}
}

func TestChunkPage_RechunksOversizedPieces(t *testing.T) {
	params, err := NewParams(100, 10, 5, 10, false, nil, nil)
	if err != nil {
		t.Fatalf("NewParams() error = %v", err)
	}
	asm := NewAssembler(params, inflatingCodec{})

	page := PageRecord{DocID: "d", PageNumber: 1, Text: strings.Repeat("a", 120)}
	got := asm.ChunkPage(page, NewDeduper())

	// 120 tokens window into [0,100) and [90,120). The first piece decodes
	// to 110 tokens and is re-windowed; its leading sub-piece decodes back
	// to itself and is dropped as a duplicate.
	want := []string{
		strings.Repeat("a", 10) + strings.Repeat("x", 20),
		strings.Repeat("a", 30) + strings.Repeat("x", 10),
	}
	if len(got) != len(want) {
		t.Fatalf("ChunkPage() produced %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Text != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i].Text, want[i])
		}
	}
}
