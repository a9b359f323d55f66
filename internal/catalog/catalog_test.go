package catalog

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordDocument_Upsert(t *testing.T) {
	db := openTestDB(t)

	if err := db.RecordDocument("structures-vol1", "structures-vol1.pdf", "engineering", 100); err != nil {
		t.Fatalf("RecordDocument() error = %v", err)
	}
	// re-extracting the same document updates, never duplicates
	if err := db.RecordDocument("structures-vol1", "structures-vol1.pdf", "engineering", 120); err != nil {
		t.Fatalf("RecordDocument() upsert error = %v", err)
	}
	if err := db.RecordDocument("history-vol1", "history-vol1.pdf", "history", 80); err != nil {
		t.Fatalf("RecordDocument() error = %v", err)
	}

	st, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if st.Documents != 2 {
		t.Errorf("Documents = %d, want 2", st.Documents)
	}
	if st.Pages != 200 {
		t.Errorf("Pages = %d, want 200 (120 + 80)", st.Pages)
	}
	if st.PerCategory["engineering"] != 1 || st.PerCategory["history"] != 1 {
		t.Errorf("PerCategory = %v, want one document per category", st.PerCategory)
	}
}

func TestGetStats_ChunkRuns(t *testing.T) {
	db := openTestDB(t)

	if err := db.RecordRun("chunk", "a.jsonl", 40, 2, "completed"); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if err := db.RecordRun("chunk", "b.jsonl", 25, 0, "completed"); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	// failed and non-chunk runs must not count
	if err := db.RecordRun("chunk", "c.jsonl", 9, 1, "failed"); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if err := db.RecordRun("index", "a_chunks.jsonl", 40, 0, "completed"); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	st, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if st.ChunksKept != 65 {
		t.Errorf("ChunksKept = %d, want 65", st.ChunksKept)
	}
}

func TestRecordQuestion(t *testing.T) {
	db := openTestDB(t)

	if err := db.RecordQuestion("what is a cantilever?", "a beam anchored at one end"); err != nil {
		t.Fatalf("RecordQuestion() error = %v", err)
	}
	if err := db.RecordQuestion("what is a truss?", "a triangulated frame"); err != nil {
		t.Fatalf("RecordQuestion() error = %v", err)
	}

	st, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if st.Questions != 2 {
		t.Errorf("Questions = %d, want 2", st.Questions)
	}
}

func TestGetStats_Empty(t *testing.T) {
	db := openTestDB(t)

	st, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if st.Documents != 0 || st.Pages != 0 || st.ChunksKept != 0 || st.Questions != 0 {
		t.Errorf("empty catalog stats = %+v, want all zero", st)
	}
	if len(st.PerCategory) != 0 {
		t.Errorf("PerCategory = %v, want empty", st.PerCategory)
	}
}
