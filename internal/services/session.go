package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tecnokaijin/storefront/internal/metrics"
)

// SessionStore maps opaque bearer tokens to user IDs. Sessions live in memory
// and are lost on restart.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]int64
	metrics  *metrics.AppMetrics
}

func NewSessionStore(m *metrics.AppMetrics) *SessionStore {
	return &SessionStore{sessions: make(map[string]int64), metrics: m}
}

// Issue creates a token for userID
func (s *SessionStore) Issue(ctx context.Context, userID int64) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = userID
	s.mu.Unlock()
	s.report(ctx)
	return token
}

// Resolve returns the user behind token
func (s *SessionStore) Resolve(token string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.sessions[token]
	return id, ok
}

// Revoke ends one session
func (s *SessionStore) Revoke(ctx context.Context, token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	s.report(ctx)
}

// RevokeUser ends every session of userID
func (s *SessionStore) RevokeUser(ctx context.Context, userID int64) {
	s.mu.Lock()
	for token, id := range s.sessions {
		if id == userID {
			delete(s.sessions, token)
		}
	}
	s.mu.Unlock()
	s.report(ctx)
}

// ActiveUsers counts distinct users with at least one session
func (s *SessionStore) ActiveUsers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{}, len(s.sessions))
	for _, id := range s.sessions {
		seen[id] = struct{}{}
	}
	return len(seen)
}

func (s *SessionStore) report(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	s.metrics.ActiveUsersCount.Record(ctx, int64(s.ActiveUsers()))
}
