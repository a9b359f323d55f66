package index

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"archrag/internal/chunk"
	"archrag/pkg/logger"
)

// insertBatchSize bounds how many chunks are embedded and inserted at once.
const insertBatchSize = 256

// RunRecorder receives per-file indexing outcomes.
type RunRecorder interface {
	RecordRun(stage, file string, kept, skipped int, status string) error
}

// Run reads every *_chunks.jsonl under chunksDir, embeds the chunks and
// upserts them into the vector store. Malformed lines are skipped, file
// failures abort that file only.
func Run(ctx context.Context, chunksDir string, rec RunRecorder) (indexed, skipped int, err error) {
	matches, err := filepath.Glob(filepath.Join(chunksDir, "*_chunks.jsonl"))
	if err != nil {
		return 0, 0, err
	}
	if len(matches) == 0 {
		return 0, 0, fmt.Errorf("no chunk files under %s", chunksDir)
	}

	for _, path := range matches {
		n, s, ferr := indexFile(ctx, path)
		indexed += n
		skipped += s
		status := "completed"
		if ferr != nil {
			status = "failed"
			logger.Error(ferr, "indexing %s failed", filepath.Base(path))
		} else {
			logger.Info("indexed %s: %d chunk(s), %d skipped", filepath.Base(path), n, s)
		}
		if rec != nil {
			if err := rec.RecordRun("index", filepath.Base(path), n, s, status); err != nil {
				logger.Error(err, "catalog record failed for %s", path)
			}
		}
	}
	logger.Info("indexing done: %d chunk(s) indexed, %d line(s) skipped", indexed, skipped)
	return indexed, skipped, nil
}

func indexFile(ctx context.Context, path string) (indexed, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)

	var batch []chunk.ChunkRecord
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inputs := make([]string, len(batch))
		for i, r := range batch {
			inputs[i] = r.Text
		}
		vectors, err := EmbedTexts(ctx, inputs)
		if err != nil {
			return err
		}
		n, err := UpsertVectors(ctx, batch, vectors)
		if err != nil {
			return err
		}
		indexed += n
		batch = batch[:0]
		return nil
	}

	lineNum := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return indexed, skipped, err
		}
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r chunk.ChunkRecord
		if err := json.Unmarshal(line, &r); err != nil {
			logger.Warn("%s line %d: parse error: %v", filepath.Base(path), lineNum, err)
			skipped++
			continue
		}
		batch = append(batch, r)
		if len(batch) >= insertBatchSize {
			if err := flush(); err != nil {
				return indexed, skipped, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return indexed, skipped, err
	}
	return indexed, skipped, flush()
}
