package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// PartSuffix marks a download that has not been moved into place yet
const PartSuffix = ".part"

// FileOperations provides file system utilities
type FileOperations struct{}

// NewFileOperations creates a new FileOperations instance
func NewFileOperations() *FileOperations {
	return &FileOperations{}
}

// EnsureDir creates the parent directory of path if it doesn't exist
func (f *FileOperations) EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}

// FileExists checks if a file exists
func (f *FileOperations) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetFileSize returns the size of a file
func (f *FileOperations) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// PartPath returns the temporary path used while downloading to path
func (f *FileOperations) PartPath(path string) string {
	return path + PartSuffix
}

// CreatePartFile creates or truncates the part file for path
func (f *FileOperations) CreatePartFile(path string) (*os.File, error) {
	file, err := os.OpenFile(f.PartPath(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create partial file: %w", err)
	}
	return file, nil
}

// RemovePartFile deletes a leftover part file. A missing file is not an error.
func (f *FileOperations) RemovePartFile(path string) error {
	err := os.Remove(f.PartPath(path))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// AtomicRename moves oldPath over newPath in one step
func (f *FileOperations) AtomicRename(oldPath, newPath string) error {
	return atomic.ReplaceFile(oldPath, newPath)
}

// SetModTime sets both access and modification time of path
func (f *FileOperations) SetModTime(path string, t time.Time) error {
	return os.Chtimes(path, t, t)
}

// WriteJSONAtomic writes v as indented JSON, replacing path atomically
func (f *FileOperations) WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := f.EnsureDir(path); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadJSON decodes path into v. It reports false without error when the file does not exist.
func (f *FileOperations) ReadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return true, nil
}
