package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"archrag/internal/chunk"
)

// runeCodec counts every rune as one token, keeping chunk boundaries
// deterministic without a real tokenizer.
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

func testDriver(t *testing.T, checkpointEvery int) *Driver {
	t.Helper()
	params, err := chunk.NewParams(200, 20, 3, 5, false, nil, nil)
	if err != nil {
		t.Fatalf("NewParams() error = %v", err)
	}
	return NewDriver(chunk.NewAssembler(params, runeCodec{}), checkpointEvery)
}

func pageLine(t *testing.T, doc string, page int, text string) string {
	t.Helper()
	b, err := json.Marshal(chunk.PageRecord{
		DocID:      doc,
		File:       doc + ".pdf",
		Category:   "engineering",
		PageNumber: page,
		Text:       text,
	})
	if err != nil {
		t.Fatalf("marshal page record: %v", err)
	}
	return string(b)
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readChunks(t *testing.T, path string) []chunk.ChunkRecord {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []chunk.ChunkRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var cr chunk.ChunkRecord
		if err := json.Unmarshal(scanner.Bytes(), &cr); err != nil {
			t.Fatalf("parse chunk line: %v", err)
		}
		out = append(out, cr)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan %s: %v", path, err)
	}
	return out
}

func readCheckpoint(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read checkpoint %s: %v", path, err)
	}
	var hashes []string
	for _, l := range strings.Split(string(b), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			hashes = append(hashes, l)
		}
	}
	sort.Strings(hashes)
	return hashes
}

func TestJobsFromDir(t *testing.T) {
	cleaned := t.TempDir()
	chunks := t.TempDir()
	for _, name := range []string{"alpha.jsonl", "beta.jsonl", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(cleaned, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := JobsFromDir(cleaned, chunks)
	if err != nil {
		t.Fatalf("JobsFromDir() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if got := filepath.Base(jobs[0].Output); got != "alpha_chunks.jsonl" {
		t.Errorf("output name = %q, want alpha_chunks.jsonl", got)
	}
	if got := filepath.Base(jobs[0].Checkpoint); got != "alpha_checkpoint.txt" {
		t.Errorf("checkpoint name = %q, want alpha_checkpoint.txt", got)
	}
}

func TestProcessFile_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	job := Job{
		Input:      filepath.Join(dir, "doc.jsonl"),
		Output:     filepath.Join(dir, "doc_chunks.jsonl"),
		Checkpoint: filepath.Join(dir, "doc_checkpoint.txt"),
	}
	writeLines(t, job.Input, []string{
		pageLine(t, "doc", 1, "the first page of useful content"),
		`{"this is not valid json`,
		pageLine(t, "doc", 2, "the second page of useful content"),
	})

	res := testDriver(t, 0).ProcessFile(context.Background(), job)
	if res.State != StateCompleted {
		t.Fatalf("State = %s (err %v), want completed", res.State, res.Err)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}
	if res.Kept != 2 {
		t.Errorf("Kept = %d, want 2", res.Kept)
	}

	got := readChunks(t, job.Output)
	if len(got) != 2 {
		t.Fatalf("output has %d chunks, want 2", len(got))
	}
	if got[0].PageSpan[0] != 1 || got[1].PageSpan[0] != 2 {
		t.Errorf("chunks out of input order: pages %d, %d", got[0].PageSpan[0], got[1].PageSpan[0])
	}

	hashes := readCheckpoint(t, job.Checkpoint)
	if len(hashes) != 2 {
		t.Errorf("checkpoint has %d hashes, want 2", len(hashes))
	}
}

func TestProcessFile_ResumeMatchesSinglePass(t *testing.T) {
	lines := []string{
		pageLine(t, "doc", 1, "first unique page body with enough words"),
		pageLine(t, "doc", 2, "second unique page body with enough words"),
		pageLine(t, "doc", 3, "third unique page body with enough words"),
		pageLine(t, "doc", 4, "fourth unique page body with enough words"),
	}

	// interrupted run: first two lines, then the full file again
	resumeDir := t.TempDir()
	resumeJob := Job{
		Input:      filepath.Join(resumeDir, "doc.jsonl"),
		Output:     filepath.Join(resumeDir, "doc_chunks.jsonl"),
		Checkpoint: filepath.Join(resumeDir, "doc_checkpoint.txt"),
	}
	d := testDriver(t, 0)

	writeLines(t, resumeJob.Input, lines[:2])
	if res := d.ProcessFile(context.Background(), resumeJob); res.State != StateCompleted {
		t.Fatalf("first pass: state %s, err %v", res.State, res.Err)
	}

	writeLines(t, resumeJob.Input, lines)
	res := d.ProcessFile(context.Background(), resumeJob)
	if res.State != StateCompleted {
		t.Fatalf("resumed pass: state %s, err %v", res.State, res.Err)
	}
	if res.Kept != 2 {
		t.Errorf("resumed pass Kept = %d, want 2 (first two pages already checkpointed)", res.Kept)
	}

	// reference run: whole file in one pass
	freshDir := t.TempDir()
	freshJob := Job{
		Input:      filepath.Join(freshDir, "doc.jsonl"),
		Output:     filepath.Join(freshDir, "doc_chunks.jsonl"),
		Checkpoint: filepath.Join(freshDir, "doc_checkpoint.txt"),
	}
	writeLines(t, freshJob.Input, lines)
	if res := d.ProcessFile(context.Background(), freshJob); res.State != StateCompleted {
		t.Fatalf("reference pass: state %s, err %v", res.State, res.Err)
	}

	resumedChunks := readChunks(t, resumeJob.Output)
	freshChunks := readChunks(t, freshJob.Output)
	if len(resumedChunks) != len(freshChunks) {
		t.Fatalf("resumed run wrote %d chunks, single pass wrote %d", len(resumedChunks), len(freshChunks))
	}
	for i := range freshChunks {
		if resumedChunks[i].ChunkHash != freshChunks[i].ChunkHash {
			t.Errorf("chunk %d hash differs: resumed %s, fresh %s",
				i, resumedChunks[i].ChunkHash, freshChunks[i].ChunkHash)
		}
	}

	resumedHashes := readCheckpoint(t, resumeJob.Checkpoint)
	freshHashes := readCheckpoint(t, freshJob.Checkpoint)
	if len(resumedHashes) != len(freshHashes) {
		t.Fatalf("checkpoint sizes differ: resumed %d, fresh %d", len(resumedHashes), len(freshHashes))
	}
	for i := range freshHashes {
		if resumedHashes[i] != freshHashes[i] {
			t.Errorf("checkpoint hash %d differs: resumed %s, fresh %s", i, resumedHashes[i], freshHashes[i])
		}
	}
}

func TestProcessFile_CancelFlushesCheckpoint(t *testing.T) {
	dir := t.TempDir()
	job := Job{
		Input:      filepath.Join(dir, "doc.jsonl"),
		Output:     filepath.Join(dir, "doc_chunks.jsonl"),
		Checkpoint: filepath.Join(dir, "doc_checkpoint.txt"),
	}
	writeLines(t, job.Input, []string{
		pageLine(t, "doc", 1, "a page that will never be processed"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := testDriver(t, 0).ProcessFile(ctx, job)
	if res.State != StateFailed {
		t.Fatalf("State = %s, want failed", res.State)
	}
	if res.Err == nil {
		t.Errorf("cancelled run returned nil error")
	}
	if _, err := os.Stat(job.Checkpoint); err != nil {
		t.Errorf("checkpoint not written on cancel: %v", err)
	}
}

func TestRun_Pool(t *testing.T) {
	cleaned := t.TempDir()
	chunks := t.TempDir()

	writeLines(t, filepath.Join(cleaned, "a.jsonl"), []string{
		pageLine(t, "a", 1, "alpha document page one content"),
		pageLine(t, "a", 2, "alpha document page two content"),
	})
	writeLines(t, filepath.Join(cleaned, "b.jsonl"), []string{
		pageLine(t, "b", 1, "beta document page one content"),
		`not json at all`,
	})

	jobs, err := JobsFromDir(cleaned, chunks)
	if err != nil {
		t.Fatalf("JobsFromDir() error = %v", err)
	}

	sum := testDriver(t, 0).Run(context.Background(), jobs, 2)
	if sum.Completed != 2 || sum.Failed != 0 {
		t.Fatalf("Completed = %d, Failed = %d, want 2/0", sum.Completed, sum.Failed)
	}
	if sum.Kept != 3 {
		t.Errorf("Kept = %d, want 3", sum.Kept)
	}
	if sum.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", sum.Skipped)
	}
	if len(sum.Results) != 2 {
		t.Errorf("Results has %d entries, want 2", len(sum.Results))
	}
	for _, name := range []string{"a_chunks.jsonl", "b_chunks.jsonl"} {
		if _, err := os.Stat(filepath.Join(chunks, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}
}

func TestSaveCheckpoint_Atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.txt")

	dedup := chunk.NewDeduper()
	for i := 0; i < 3; i++ {
		dedup.Check(fmt.Sprintf("chunk %d", i))
	}
	if err := saveCheckpoint(path, dedup); err != nil {
		t.Fatalf("saveCheckpoint() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind")
	}

	restored := chunk.NewDeduper()
	n, err := loadCheckpoint(path, restored)
	if err != nil {
		t.Fatalf("loadCheckpoint() error = %v", err)
	}
	if n != 3 || restored.Len() != 3 {
		t.Errorf("restored %d hashes (Len %d), want 3", n, restored.Len())
	}
}
