package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/natefinch/atomic"

	"msgfetch/internal"
)

// CredentialStore owns the session credentials. Readers always get a
// complete snapshot, either from before or after a Replace.
type CredentialStore struct {
	mutex sync.RWMutex
	creds internal.Credentials
}

// NewCredentialStore creates a store holding a copy of creds
func NewCredentialStore(creds internal.Credentials) *CredentialStore {
	return &CredentialStore{creds: creds.Clone()}
}

// Get returns a snapshot of the current credentials
func (s *CredentialStore) Get() internal.Credentials {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.creds.Clone()
}

// Replace swaps in new credentials
func (s *CredentialStore) Replace(creds internal.Credentials) {
	next := creds.Clone()

	s.mutex.Lock()
	s.creds = next
	s.mutex.Unlock()
}

// AccessToken returns just the current access token
func (s *CredentialStore) AccessToken() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.creds.AccessToken
}

// LoadCredentialsFile reads the JSON credentials written by the browser login helper
func LoadCredentialsFile(path string) (internal.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return internal.Credentials{}, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds internal.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return internal.Credentials{}, internal.NewValidationError("credentials", fmt.Sprintf("invalid credentials file: %v", err)).
			WithContext("file", path).
			WithSuggestion("Re-run the browser login helper to regenerate the file")
	}

	if creds.AccessToken == "" && len(creds.Cookies) == 0 {
		return internal.Credentials{}, internal.NewValidationError("credentials", "file has neither access_token nor cookies").
			WithContext("file", path)
	}

	return creds, nil
}

// SaveCredentialsFile writes creds back to path, replacing it atomically
func SaveCredentialsFile(path string, creds internal.Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}
