package extract

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"archrag/internal/chunk"
	"archrag/pkg/logger"

	"github.com/ledongthuc/pdf"
)

// Recorder receives per-document metadata as extraction proceeds. Recording
// failures are logged by callers and never abort extraction.
type Recorder interface {
	RecordDocument(docID, file, category string, pages int) error
}

// Summary reports what extraction produced.
type Summary struct {
	Docs        int
	Pages       int
	PerCategory map[string]int
}

// Run walks a corpus root of per-category PDF directories and writes one
// PageRecord JSONL file per category into cleanedDir. The root may be an
// s3:// URI, in which case the objects are fetched to a temp dir first.
// Unreadable PDFs are logged and skipped.
func Run(ctx context.Context, corpusDir, cleanedDir string, rec Recorder) (Summary, error) {
	sum := Summary{PerCategory: make(map[string]int)}

	if strings.HasPrefix(corpusDir, "s3://") {
		local, cleanup, err := FetchCorpus(ctx, corpusDir)
		if err != nil {
			return sum, fmt.Errorf("fetch corpus: %w", err)
		}
		defer cleanup()
		corpusDir = local
	}

	entries, err := os.ReadDir(corpusDir)
	if err != nil {
		return sum, fmt.Errorf("read corpus dir: %w", err)
	}
	if err := os.MkdirAll(cleanedDir, 0o755); err != nil {
		return sum, fmt.Errorf("create cleaned dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		category := entry.Name()
		pdfs := listPDFs(filepath.Join(corpusDir, category))
		if len(pdfs) == 0 {
			continue
		}
		logger.Info("category %q: %d PDF(s)", category, len(pdfs))

		outPath := filepath.Join(cleanedDir, category+".jsonl")
		pages, docs, err := processCategory(ctx, pdfs, category, outPath, rec)
		if err != nil {
			return sum, err
		}
		sum.Docs += docs
		sum.Pages += pages
		sum.PerCategory[category] = pages
		logger.Info("category %q: wrote %d page(s) from %d document(s) -> %s", category, pages, docs, outPath)
	}
	return sum, nil
}

func listPDFs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Error(err, "read category dir %s", dir)
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}

func processCategory(ctx context.Context, pdfs []string, category, outPath string, rec Recorder) (pages, docs int, err error) {
	out, err := os.Create(outPath)
	if err != nil {
		return 0, 0, fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for _, path := range pdfs {
		if err := ctx.Err(); err != nil {
			return pages, docs, err
		}
		n, err := processPDF(path, category, enc)
		if err != nil {
			logger.Error(err, "cannot process %s, skipping", filepath.Base(path))
			continue
		}
		logger.Info("%s -> %d page(s)", filepath.Base(path), n)
		pages += n
		docs++

		if rec != nil {
			docID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if err := rec.RecordDocument(docID, filepath.Base(path), category, n); err != nil {
				logger.Error(err, "catalog record failed for %s", docID)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return pages, docs, fmt.Errorf("flush %s: %w", outPath, err)
	}
	return pages, docs, nil
}

// processPDF extracts, cleans and dedups the pages of one PDF, writing one
// PageRecord per surviving page. Identical pages within a document (repeated
// covers, blank scans) are dropped by content hash.
func processPDF(path, category string, enc *json.Encoder) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	base := filepath.Base(path)
	docID := strings.TrimSuffix(base, filepath.Ext(base))

	seen := make(map[string]struct{})
	written := 0
	for num := 1; num <= r.NumPage(); num++ {
		page := r.Page(num)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("%s page %d: text extraction failed: %v", base, num, err)
			continue
		}
		text = CleanPage(text)
		if text == "" {
			continue
		}

		h := chunk.HashText(text)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}

		if err := enc.Encode(chunk.PageRecord{
			DocID:      docID,
			File:       base,
			Category:   category,
			PageNumber: num,
			Text:       text,
		}); err != nil {
			return written, fmt.Errorf("write page record: %w", err)
		}
		written++
	}
	return written, nil
}
