package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Sessions issues and resolves opaque bearer tokens. Tokens live in process
// memory and expire after the configured TTL.
type Sessions struct {
	ttl time.Duration
	now func() time.Time

	mu sync.Mutex
	m  map[string]sessionEntry
}

type sessionEntry struct {
	principal Principal
	expiresAt time.Time
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		ttl: ttl,
		now: time.Now,
		m:   make(map[string]sessionEntry),
	}
}

// Issue mints a token bound to p.
func (s *Sessions) Issue(p Principal) string {
	token := "sess_" + randHex(24)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gcLocked()
	s.m[token] = sessionEntry{principal: p, expiresAt: s.now().Add(s.ttl)}
	return token
}

// Lookup resolves a token to its principal. Expired tokens are removed.
func (s *Sessions) Lookup(token string) (*Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.m[token]
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.m, token)
		return nil, false
	}
	p := entry.principal
	return &p, true
}

// Revoke drops a token.
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, token)
}

func (s *Sessions) gcLocked() {
	now := s.now()
	for token, entry := range s.m {
		if now.After(entry.expiresAt) {
			delete(s.m, token)
		}
	}
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000000000")))
	}
	return hex.EncodeToString(b)
}
