package downloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncState_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFileName)

	state, err := LoadSyncState(path)
	require.NoError(t, err)
	assert.Zero(t, state.Len())
	assert.Zero(t, state.LastMessageID(1, 2))

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	state.Update(1, 2, MemberState{LastMessageID: 50, TotalMessages: 7, LastSync: now})
	require.NoError(t, state.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"1_2"`)
	assert.Contains(t, string(data), `"last_message_id": 50`)

	loaded, err := LoadSyncState(path)
	require.NoError(t, err)
	st, ok := loaded.Get(1, 2)
	require.True(t, ok)
	assert.Equal(t, MemberState{LastMessageID: 50, TotalMessages: 7, LastSync: now}, st)
}

func TestSyncState_LastMessageIDNeverRegresses(t *testing.T) {
	state, err := LoadSyncState(filepath.Join(t.TempDir(), StateFileName))
	require.NoError(t, err)

	state.Update(1, 2, MemberState{LastMessageID: 50})
	state.Update(1, 2, MemberState{LastMessageID: 10, TotalMessages: 3})

	st, _ := state.Get(1, 2)
	assert.Equal(t, int64(50), st.LastMessageID)
	assert.Equal(t, 3, st.TotalMessages)
}

func TestLoadSyncState_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFileName)
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o644))

	_, err := LoadSyncState(path)
	assert.Error(t, err)
}
