// Package credentials owns the Partner credential state: populated at
// login, invalidated on 401, read-only to the orchestration core.
package credentials

import (
	"sync"
	"time"
)

// Credentials are the stored Partner credentials captured at login.
type Credentials struct {
	AccessToken string
	AccountID   string
	ExpiresAt   time.Time // zero when the Partner issues non-expiring tokens
}

// Store holds the process-wide Partner credentials behind a lock. The login
// flow is the only writer besides Invalidate.
type Store struct {
	mu    sync.RWMutex
	creds *Credentials
}

func NewStore() *Store {
	return &Store{}
}

// Set replaces the stored credentials. Called by the login flow.
func (s *Store) Set(c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &c
}

// Invalidate discards the stored credentials. Called when the Partner
// rejects them with a 401.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
}

// Current returns the stored credentials, if any.
func (s *Store) Current() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return Credentials{}, false
	}
	return *s.creds, true
}
