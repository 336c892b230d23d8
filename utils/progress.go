package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// ProgressTracker shows progress of a batch of media downloads, counted in files
type ProgressTracker struct {
	bar       *pb.ProgressBar
	quiet     bool
	out       io.Writer
	startTime time.Time
	total     int64
	mutex     sync.Mutex

	downloaded int64
	skipped    int64
	failed     int64
	bytes      int64
}

// DownloadSummary contains final statistics for a batch
type DownloadSummary struct {
	Total        int64
	Downloaded   int64
	Skipped      int64
	Failed       int64
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
}

// NewProgressTracker creates a tracker for total files drawn on stderr. In quiet mode nothing is drawn.
func NewProgressTracker(total int64, quiet bool, prefix string) *ProgressTracker {
	return newProgressTracker(total, quiet, prefix, os.Stderr)
}

func newProgressTracker(total int64, quiet bool, prefix string, out io.Writer) *ProgressTracker {
	tracker := &ProgressTracker{
		quiet:     quiet,
		out:       out,
		startTime: time.Now(),
		total:     total,
	}

	if !quiet && total > 0 {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{rtime . "ETA %s"}}`
		bar := pb.ProgressBarTemplate(tmpl).New(int(total))
		bar.SetWriter(tracker.out)
		bar.Set("prefix", prefix)
		tracker.bar = bar.Start()
	}

	return tracker
}

// Done records one finished item. Skipped items are files that needed no download.
func (p *ProgressTracker) Done(bytes int64, skipped bool, err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	switch {
	case err != nil:
		p.failed++
	case skipped:
		p.skipped++
	default:
		p.downloaded++
		p.bytes += bytes
	}

	if p.bar != nil {
		p.bar.Increment()
	}
}

// Finish completes the progress bar and returns the summary
func (p *ProgressTracker) Finish() *DownloadSummary {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.bar != nil {
		p.bar.Finish()
	}

	totalTime := time.Since(p.startTime)
	summary := &DownloadSummary{
		Total:      p.total,
		Downloaded: p.downloaded,
		Skipped:    p.skipped,
		Failed:     p.failed,
		TotalBytes: p.bytes,
		TotalTime:  totalTime,
	}
	if secs := totalTime.Seconds(); secs > 0 {
		summary.AverageSpeed = float64(p.bytes) / secs
	}

	if !p.quiet && p.total > 0 {
		p.displaySummary(summary)
	}

	return summary
}

// displaySummary prints the batch summary statistics
func (p *ProgressTracker) displaySummary(summary *DownloadSummary) {
	fmt.Fprintf(p.out, "Media: %d downloaded, %d skipped, %d failed of %d\n",
		summary.Downloaded, summary.Skipped, summary.Failed, summary.Total)
	fmt.Fprintf(p.out, "Total size: %s in %v (%s/s)\n",
		FormatBytes(summary.TotalBytes), summary.TotalTime.Round(time.Millisecond), FormatBytes(int64(summary.AverageSpeed)))
}

// IsQuiet returns whether the tracker is in quiet mode
func (p *ProgressTracker) IsQuiet() bool {
	return p.quiet
}

// FormatBytes formats byte count as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
