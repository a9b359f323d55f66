package pipeline

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"

	"archrag/pkg/logger"
)

// Summary aggregates results across all processed files.
type Summary struct {
	Results   []Result
	Kept      int
	Skipped   int
	Failed    int
	Completed int
}

// Run processes the given jobs, fanning out one worker per file when more
// than one file is queued and multiple execution units are available.
// Workers share no mutable state: each owns its input, output and
// checkpoint files exclusively, so no locking is needed.
func (d *Driver) Run(ctx context.Context, jobs []Job, workers int) Summary {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers < 1 {
		workers = 1
	}

	logger.Info("processing %d file(s) with %d worker(s)", len(jobs), workers)

	jobCh := make(chan Job, len(jobs))
	resCh := make(chan Result, len(jobs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				resCh <- d.ProcessFile(ctx, job)
			}
		}()
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	wg.Wait()
	close(resCh)

	var sum Summary
	for res := range resCh {
		sum.Results = append(sum.Results, res)
		sum.Kept += res.Kept
		sum.Skipped += res.Skipped
		switch res.State {
		case StateCompleted:
			sum.Completed++
			logger.Info("completed %s: kept=%d skipped=%d", filepath.Base(res.Job.Input), res.Kept, res.Skipped)
		case StateFailed:
			sum.Failed++
			logger.Error(res.Err, "failed %s", filepath.Base(res.Job.Input))
		}
	}
	logger.Info("chunking done: kept=%d skipped=%d completed=%d failed=%d",
		sum.Kept, sum.Skipped, sum.Completed, sum.Failed)
	return sum
}
