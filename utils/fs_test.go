package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileOperations_EnsureDirAndExists(t *testing.T) {
	fileOps := NewFileOperations()
	path := filepath.Join(t.TempDir(), "a", "b", "file.txt")

	require.NoError(t, fileOps.EnsureDir(path))
	assert.DirExists(t, filepath.Dir(path))
	assert.False(t, fileOps.FileExists(path))

	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))
	assert.True(t, fileOps.FileExists(path))

	size, err := fileOps.GetFileSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
}

func TestFileOperations_PartFileLifecycle(t *testing.T) {
	fileOps := NewFileOperations()
	path := filepath.Join(t.TempDir(), "photo.jpg")

	file, err := fileOps.CreatePartFile(path)
	require.NoError(t, err)
	_, err = file.WriteString("jpeg-bytes")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	assert.FileExists(t, path+PartSuffix)
	assert.NoFileExists(t, path)

	require.NoError(t, fileOps.AtomicRename(fileOps.PartPath(path), path))

	assert.NoFileExists(t, path+PartSuffix)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestFileOperations_RemovePartFile(t *testing.T) {
	fileOps := NewFileOperations()
	path := filepath.Join(t.TempDir(), "voice.m4a")

	require.NoError(t, fileOps.RemovePartFile(path), "missing part file is not an error")

	require.NoError(t, os.WriteFile(path+PartSuffix, []byte("x"), 0644))
	require.NoError(t, fileOps.RemovePartFile(path))
	assert.NoFileExists(t, path+PartSuffix)
}

func TestFileOperations_SetModTime(t *testing.T) {
	fileOps := NewFileOperations()
	path := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	ts := time.Date(2023, 5, 17, 9, 30, 0, 0, time.UTC)
	require.NoError(t, fileOps.SetModTime(path, ts))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(ts))
}

func TestFileOperations_JSONRoundTripAndMissing(t *testing.T) {
	fileOps := NewFileOperations()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	var missing map[string]int
	ok, err := fileOps.ReadJSON(path, &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fileOps.WriteJSONAtomic(path, map[string]int{"last_message_id": 42}))

	var got map[string]int
	ok, err = fileOps.ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, got["last_message_id"])
}

func TestFileOperations_ReadJSONCorrupt(t *testing.T) {
	fileOps := NewFileOperations()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	var v map[string]any
	ok, err := fileOps.ReadJSON(path, &v)
	assert.True(t, ok)
	assert.Error(t, err)
}
