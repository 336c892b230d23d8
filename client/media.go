package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"msgfetch/internal"
	"msgfetch/utils"
)

// MediaDownloader fetches binary media to local files
type MediaDownloader struct {
	exec   *Executor
	files  *utils.FileOperations
	logger *internal.SecureLogger
}

// NewMediaDownloader creates a downloader that sends its requests through exec
func NewMediaDownloader(exec *Executor, logger *internal.SecureLogger) *MediaDownloader {
	if logger == nil {
		logger = internal.GetLogger()
	}
	return &MediaDownloader{
		exec:   exec,
		files:  utils.NewFileOperations(),
		logger: logger,
	}
}

// Download saves url to path and reports whether path now holds the file.
//
// An existing path is left alone and reported as true without any request.
// The body is streamed into path + ".part" and renamed into place only when
// complete, so a failed or cancelled download never leaves a file at path.
// A non-empty RFC 3339 timestamp becomes the file's access and modification time.
//
// An empty response body is the one failure reported as (false, nil): nothing
// is written and the caller may try again later. Every other failure is an error.
func (d *MediaDownloader) Download(ctx context.Context, url, path, timestamp string) (ok bool, err error) {
	if d.files.FileExists(path) {
		return true, nil
	}

	var modTime time.Time
	if timestamp != "" {
		if modTime, err = time.Parse(time.RFC3339, timestamp); err != nil {
			return false, internal.NewValidationErrorWithValue("timestamp", "must be RFC 3339", timestamp)
		}
	}

	if err := d.files.EnsureDir(path); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	resp, err := d.exec.Do(ctx, RequestSpec{Method: http.MethodGet, Path: url, Anonymous: true})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	part, err := d.files.CreatePartFile(path)
	if err != nil {
		return false, err
	}

	closed := false
	defer func() {
		if !closed {
			part.Close()
		}
		if !ok {
			if rmErr := d.files.RemovePartFile(path); rmErr != nil {
				d.logger.Warn("Failed to remove partial file %s: %v", d.files.PartPath(path), rmErr)
			}
		}
	}()

	n, err := io.Copy(part, resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, internal.NewTransportError(url, 1, err)
	}

	closed = true
	if err := part.Close(); err != nil {
		return false, fmt.Errorf("failed to flush %s: %w", d.files.PartPath(path), err)
	}

	if n == 0 {
		d.logger.Warn("Empty response body for %s, nothing written", url)
		return false, nil
	}

	if err := d.files.AtomicRename(d.files.PartPath(path), path); err != nil {
		return false, fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	ok = true

	if !modTime.IsZero() {
		if err := d.files.SetModTime(path, modTime); err != nil {
			return true, fmt.Errorf("downloaded %s but failed to set its time: %w", path, err)
		}
	}

	d.logger.Debug("Downloaded %s (%s)", path, utils.FormatBytes(n))
	return true, nil
}
