package downloader

import (
	"fmt"
	"sync"
	"time"

	"msgfetch/utils"
)

// StateFileName is the sync bookkeeping file kept in the output directory
const StateFileName = "sync_state.json"

// MemberState records how far one member's timeline has been synced
type MemberState struct {
	LastMessageID int64     `json:"last_message_id"`
	TotalMessages int       `json:"total_messages"`
	LastSync      time.Time `json:"last_sync"`
}

// SyncState is the persisted per-member progress, keyed "<group id>_<member id>"
type SyncState struct {
	mutex   sync.RWMutex
	path    string
	files   *utils.FileOperations
	members map[string]MemberState
}

// LoadSyncState reads path. A missing file yields an empty state.
func LoadSyncState(path string) (*SyncState, error) {
	s := &SyncState{
		path:    path,
		files:   utils.NewFileOperations(),
		members: make(map[string]MemberState),
	}

	if _, err := s.files.ReadJSON(path, &s.members); err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}
	if s.members == nil {
		s.members = make(map[string]MemberState)
	}
	return s, nil
}

func stateKey(groupID, memberID int64) string {
	return fmt.Sprintf("%d_%d", groupID, memberID)
}

// Get returns the recorded state of a member
func (s *SyncState) Get(groupID, memberID int64) (MemberState, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	st, ok := s.members[stateKey(groupID, memberID)]
	return st, ok
}

// LastMessageID returns the newest synced message id of a member, 0 if never synced
func (s *SyncState) LastMessageID(groupID, memberID int64) int64 {
	st, _ := s.Get(groupID, memberID)
	return st.LastMessageID
}

// Update records new progress for a member. LastMessageID never moves backwards.
func (s *SyncState) Update(groupID, memberID int64, st MemberState) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := stateKey(groupID, memberID)
	if prev, ok := s.members[key]; ok && prev.LastMessageID > st.LastMessageID {
		st.LastMessageID = prev.LastMessageID
	}
	s.members[key] = st
}

// Len returns the number of tracked members
func (s *SyncState) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.members)
}

// Save writes the state back atomically
func (s *SyncState) Save() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if err := s.files.WriteJSONAtomic(s.path, s.members); err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}
