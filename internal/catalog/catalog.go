package catalog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the local catalog: which documents were extracted, what each
// pipeline run produced, and the question history. The pipeline treats it as
// best-effort bookkeeping; catalog errors are logged by callers, never
// fatal.
type DB struct {
	*sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id     TEXT NOT NULL,
	file       TEXT NOT NULL,
	category   TEXT NOT NULL,
	pages      INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(doc_id, category)
);

CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	stage       TEXT NOT NULL,
	file        TEXT NOT NULL,
	kept        INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	status      TEXT NOT NULL,
	finished_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS questions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open opens or creates the catalog database at path and ensures the
// schema exists.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("catalog: enable foreign keys: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("catalog: init schema: %w", err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// RecordDocument upserts one extracted document.
func (db *DB) RecordDocument(docID, file, category string, pages int) error {
	_, err := db.Exec(`
		INSERT INTO documents (doc_id, file, category, pages)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_id, category) DO UPDATE SET file = excluded.file, pages = excluded.pages`,
		docID, file, category, pages)
	return err
}

// RecordRun stores the outcome of one per-file pipeline run.
func (db *DB) RecordRun(stage, file string, kept, skipped int, status string) error {
	_, err := db.Exec(`
		INSERT INTO runs (stage, file, kept, skipped, status, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		stage, file, kept, skipped, status, time.Now().UTC())
	return err
}

// RecordQuestion stores one answered question.
func (db *DB) RecordQuestion(question, answer string) error {
	_, err := db.Exec(`INSERT INTO questions (question, answer) VALUES (?, ?)`, question, answer)
	return err
}

// Stats summarizes the catalog contents.
type Stats struct {
	Documents   int            `json:"documents"`
	Pages       int            `json:"pages"`
	ChunksKept  int            `json:"chunks_kept"`
	Questions   int            `json:"questions"`
	PerCategory map[string]int `json:"per_category"`
}

func (db *DB) GetStats() (Stats, error) {
	st := Stats{PerCategory: make(map[string]int)}

	if err := db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(pages), 0) FROM documents`).
		Scan(&st.Documents, &st.Pages); err != nil {
		return st, err
	}
	if err := db.QueryRow(`SELECT COALESCE(SUM(kept), 0) FROM runs WHERE stage = 'chunk' AND status = 'completed'`).
		Scan(&st.ChunksKept); err != nil {
		return st, err
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&st.Questions); err != nil {
		return st, err
	}

	rows, err := db.Query(`SELECT category, COUNT(*) FROM documents GROUP BY category`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return st, err
		}
		st.PerCategory[category] = n
	}
	return st, rows.Err()
}

func (db *DB) Path() string {
	return db.path
}
