package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"archrag/internal/chunk"
	"archrag/pkg/logger"
)

// FileState tracks one input file through the driver's state machine.
type FileState string

const (
	StatePending    FileState = "pending"
	StateInProgress FileState = "in_progress"
	StateCompleted  FileState = "completed"
	StateFailed     FileState = "failed"
)

// maxLineBytes bounds a single JSONL line; scanned pages can run long.
const maxLineBytes = 16 << 20

// Job names the three files one worker owns exclusively: input PageRecords,
// output ChunkRecords, and the checkpoint of seen hashes.
type Job struct {
	Input      string
	Output     string
	Checkpoint string
}

// Result reports per-file outcome and counts.
type Result struct {
	Job     Job
	State   FileState
	Kept    int
	Skipped int
	Err     error
}

// Driver iterates input files, assembles chunks and manages checkpoints.
type Driver struct {
	asm             *chunk.Assembler
	checkpointEvery int
}

func NewDriver(asm *chunk.Assembler, checkpointEvery int) *Driver {
	if checkpointEvery <= 0 {
		checkpointEvery = 1000
	}
	return &Driver{asm: asm, checkpointEvery: checkpointEvery}
}

// JobsFromDir pairs every *.jsonl under cleanedDir with its output and
// checkpoint paths under chunksDir.
func JobsFromDir(cleanedDir, chunksDir string) ([]Job, error) {
	matches, err := filepath.Glob(filepath.Join(cleanedDir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(matches))
	for _, m := range matches {
		stem := strings.TrimSuffix(filepath.Base(m), ".jsonl")
		jobs = append(jobs, Job{
			Input:      m,
			Output:     filepath.Join(chunksDir, stem+"_chunks.jsonl"),
			Checkpoint: filepath.Join(chunksDir, stem+"_checkpoint.txt"),
		})
	}
	return jobs, nil
}

// ProcessFile runs one input file to completion. Malformed lines are
// counted as skipped and never abort the file; the seen-hash set is flushed
// to the checkpoint every checkpointEvery lines and once more on exit, so a
// crash loses at most that many lines of dedup state. Cancellation flushes
// the checkpoint before returning.
func (d *Driver) ProcessFile(ctx context.Context, job Job) Result {
	res := Result{Job: job, State: StateInProgress}

	dedup := chunk.NewDeduper()
	resumed, err := loadCheckpoint(job.Checkpoint, dedup)
	if err != nil {
		logger.Error(err, "checkpoint load failed for %s, starting fresh", job.Input)
	}
	if resumed > 0 {
		logger.Info("%s: resuming with %d hashes from checkpoint", filepath.Base(job.Input), resumed)
	}

	in, err := os.Open(job.Input)
	if err != nil {
		res.State = StateFailed
		res.Err = fmt.Errorf("open input: %w", err)
		return res
	}
	defer in.Close()

	// A resumed run appends; chunks already written stay valid because each
	// record is a complete newline-terminated unit.
	outFlags := os.O_CREATE | os.O_WRONLY
	if resumed > 0 {
		outFlags |= os.O_APPEND
	} else {
		outFlags |= os.O_TRUNC
	}
	out, err := os.OpenFile(job.Output, outFlags, 0o644)
	if err != nil {
		res.State = StateFailed
		res.Err = fmt.Errorf("open output: %w", err)
		return res
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNum := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			_ = w.Flush()
			if err := saveCheckpoint(job.Checkpoint, dedup); err != nil {
				logger.Error(err, "checkpoint save on cancel failed for %s", job.Input)
			}
			res.State = StateFailed
			res.Err = ctx.Err()
			return res
		default:
		}

		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec chunk.PageRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn("%s line %d: parse error: %v", filepath.Base(job.Input), lineNum, err)
			res.Skipped++
			continue
		}

		for _, cr := range d.asm.ChunkPage(rec, dedup) {
			if err := enc.Encode(cr); err != nil {
				res.State = StateFailed
				res.Err = fmt.Errorf("write chunk: %w", err)
				return res
			}
			res.Kept++
		}

		if lineNum%d.checkpointEvery == 0 {
			if err := w.Flush(); err != nil {
				res.State = StateFailed
				res.Err = fmt.Errorf("flush output: %w", err)
				return res
			}
			if err := saveCheckpoint(job.Checkpoint, dedup); err != nil {
				logger.Error(err, "checkpoint save failed for %s", job.Input)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		res.State = StateFailed
		res.Err = fmt.Errorf("read input: %w", err)
		return res
	}

	if err := w.Flush(); err != nil {
		res.State = StateFailed
		res.Err = fmt.Errorf("flush output: %w", err)
		return res
	}
	if err := saveCheckpoint(job.Checkpoint, dedup); err != nil {
		logger.Error(err, "final checkpoint save failed for %s", job.Input)
	}

	res.State = StateCompleted
	return res
}

// loadCheckpoint seeds the deduper from a checkpoint file, one hash per
// line. A missing file means "start fresh".
func loadCheckpoint(path string, dedup *chunk.Deduper) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	var hashes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if h := strings.TrimSpace(scanner.Text()); h != "" {
			hashes = append(hashes, h)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	dedup.Seed(hashes)
	return len(hashes), nil
}

// saveCheckpoint writes the seen-hash set to a temp file and renames it
// into place, so a crash mid-write cannot corrupt an existing checkpoint.
func saveCheckpoint(path string, dedup *chunk.Deduper) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, h := range dedup.Hashes() {
		if _, err := w.WriteString(h + "\n"); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
