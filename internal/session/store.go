package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Credentials is the access/refresh pair issued by the backend. An empty
// Refresh means the backend did not issue one.
type Credentials struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token,omitempty"`
}

// Persister is the durable slot the credentials survive restarts in.
type Persister interface {
	Load() (Credentials, error)
	Save(Credentials) error
}

// FileStore keeps credentials in a JSON file readable only by the owner.
type FileStore struct {
	filePath string
}

// DefaultPath returns ~/.config/atm-client/session.json.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "atm-client", "session.json"), nil
}

func NewFileStore(filePath string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{filePath: filePath}, nil
}

// Load returns empty credentials when nothing has been saved yet.
func (f *FileStore) Load() (Credentials, error) {
	var creds Credentials
	data, err := os.ReadFile(f.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return creds, fmt.Errorf("failed to read session file: %w", err)
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse session file: %w", err)
	}
	return creds, nil
}

// Save writes to a temp file and renames it over the old one, so a crash
// mid-write never leaves a truncated session behind. Empty credentials
// remove the file.
func (f *FileStore) Save(creds Credentials) error {
	if creds.Access == "" && creds.Refresh == "" {
		if err := os.Remove(f.filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp := f.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, f.filePath); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// MemoryStore is a Persister that lives only as long as the process.
type MemoryStore struct {
	mu    sync.Mutex
	creds Credentials
	saves int
}

func (m *MemoryStore) Load() (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds, nil
}

func (m *MemoryStore) Save(creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = creds
	m.saves++
	return nil
}

// Saves reports how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
