package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"msgfetch/internal"
	"msgfetch/utils"
)

// DefaultMediaConcurrency is the number of media workers when none is configured
const DefaultMediaConcurrency = 5

// MediaResult is the outcome of one media job
type MediaResult struct {
	Job internal.MediaJob
	// Path is where the file ended up. It differs from Job.Path when the
	// extension was corrected after sniffing the content.
	Path    string
	Bytes   int64
	Skipped bool
	Err     error
}

// MediaQueue downloads media jobs with a fixed number of workers
type MediaQueue struct {
	fetcher internal.MediaFetcher
	workers int
	quiet   bool
	files   *utils.FileOperations
	logger  *internal.SecureLogger
}

// NewMediaQueue creates a queue. workers < 1 selects DefaultMediaConcurrency.
func NewMediaQueue(fetcher internal.MediaFetcher, workers int, quiet bool, logger *internal.SecureLogger) *MediaQueue {
	if workers < 1 {
		workers = DefaultMediaConcurrency
	}
	if logger == nil {
		logger = internal.GetLogger()
	}
	return &MediaQueue{
		fetcher: fetcher,
		workers: workers,
		quiet:   quiet,
		files:   utils.NewFileOperations(),
		logger:  logger,
	}
}

// Run processes every job and returns per-job results in job order plus a summary.
// A failed job is logged and recorded without stopping the others; only
// cancellation of ctx aborts the run.
func (q *MediaQueue) Run(ctx context.Context, label string, jobs []internal.MediaJob) ([]MediaResult, *utils.DownloadSummary, error) {
	results := make([]MediaResult, len(jobs))
	tracker := utils.NewProgressTracker(int64(len(jobs)), q.quiet, label)

	indexes := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(indexes)
		for i := range jobs {
			select {
			case indexes <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var mu sync.Mutex
	for range min(q.workers, max(len(jobs), 1)) {
		g.Go(func() error {
			for i := range indexes {
				res := q.process(gctx, jobs[i])
				if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
					return res.Err
				}
				if res.Err != nil {
					q.logger.Warn("Failed to download %s: %v", jobs[i].URL, res.Err)
				}

				mu.Lock()
				results[i] = res
				mu.Unlock()
				tracker.Done(res.Bytes, res.Skipped, res.Err)
			}
			return nil
		})
	}

	err := g.Wait()
	summary := tracker.Finish()
	if err != nil {
		return results, summary, err
	}
	return results, summary, ctx.Err()
}

func (q *MediaQueue) process(ctx context.Context, job internal.MediaJob) MediaResult {
	res := MediaResult{Job: job, Path: job.Path}

	if existing, ok := q.existingVariant(job.Path); ok {
		res.Path = existing
		res.Skipped = true
		return res
	}

	ok, err := q.fetcher.DownloadFile(ctx, job.URL, job.Path, job.Timestamp)
	if err != nil {
		res.Err = err
		return res
	}
	if !ok {
		res.Err = fmt.Errorf("empty response for %s", job.URL)
		return res
	}

	if size, err := q.files.GetFileSize(job.Path); err == nil {
		res.Bytes = size
	}

	if strings.EqualFold(filepath.Ext(job.Path), "."+utils.UnknownExtension) {
		renamed, err := q.sniffExtension(job.Path)
		if err != nil {
			q.logger.Debug("Could not sniff %s: %v", job.Path, err)
		} else {
			res.Path = renamed
		}
	}
	return res
}

// existingVariant finds a finished download of path, including one whose
// unknown extension was already corrected by sniffing.
func (q *MediaQueue) existingVariant(path string) (string, bool) {
	if q.files.FileExists(path) {
		return path, true
	}
	if !strings.EqualFold(filepath.Ext(path), "."+utils.UnknownExtension) {
		return "", false
	}

	stem := strings.TrimSuffix(path, filepath.Ext(path))
	matches, err := filepath.Glob(globEscape(stem) + ".*")
	if err != nil {
		return "", false
	}
	for _, m := range matches {
		if !strings.HasSuffix(m, utils.PartSuffix) {
			return m, true
		}
	}
	return "", false
}

// sniffExtension renames a .bin file after its detected content type
func (q *MediaQueue) sniffExtension(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return path, err
	}

	ext := strings.TrimPrefix(mtype.Extension(), ".")
	if ext == "" || !utils.IsKnownMediaExtension(ext) {
		return path, nil
	}

	target := strings.TrimSuffix(path, filepath.Ext(path)) + "." + ext
	if err := os.Rename(path, target); err != nil {
		return path, fmt.Errorf("failed to rename %s: %w", path, err)
	}
	q.logger.Debug("Detected %s for %s", mtype.String(), target)
	return target, nil
}

func globEscape(s string) string {
	return strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`).Replace(s)
}
