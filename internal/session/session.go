// Package session holds the access and refresh credentials for the signed-in
// customer and keeps them in a durable slot so a restart does not force a new
// login.
package session

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

// Store is safe for concurrent use. Every mutation is persisted before it
// returns.
type Store struct {
	mu        sync.RWMutex
	creds     Credentials
	persister Persister
	log       *log.Logger
}

// Open restores whatever credentials the persister holds.
func Open(p Persister, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "session"})
	}
	creds, err := p.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	if creds.Access != "" {
		logger.Debug("restored persisted session", "has_refresh", creds.Refresh != "")
	}
	return &Store{creds: creds, persister: p, log: logger}, nil
}

// NewMemory returns a Store backed by a MemoryStore, with logging discarded.
func NewMemory() *Store {
	s, _ := Open(&MemoryStore{}, log.New(io.Discard))
	return s
}

// SetCredentials replaces both credentials in one step. The in-memory copy is
// updated even when persisting fails; the error is still returned.
func (s *Store) SetCredentials(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{Access: access, Refresh: refresh}
	return s.persistLocked()
}

func (s *Store) Access() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.Access
}

func (s *Store) Refresh() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.Refresh
}

func (s *Store) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Valid reports whether an access credential is held. Whether the backend
// still accepts it is only known after a call.
func (s *Store) Valid() bool {
	return s.Access() != ""
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	if err := s.persister.Save(s.creds); err != nil {
		s.log.Warn("failed to persist session", "err", err)
		return err
	}
	return nil
}
