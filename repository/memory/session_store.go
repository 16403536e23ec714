// Package memory provides the in-process reference implementation of the
// session store contract. It is the default backend for tests and for
// single-process deployments that do not need durability.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jborjar/paquetes/domain"
	"github.com/jborjar/paquetes/repository"
)

type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*domain.Session
	quotas     map[string]int
	defaultMax int
	now        func() time.Time
}

// New creates an empty store. A non-positive defaultMax falls back to a
// quota of one concurrent session per user.
func New(defaultMax int) *Store {
	if defaultMax <= 0 {
		defaultMax = 1
	}
	return &Store{
		sessions:   make(map[string]*domain.Session),
		quotas:     make(map[string]int),
		defaultMax: defaultMax,
		now:        time.Now,
	}
}

// SetClock replaces the time source used for activity-window checks.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

var _ repository.SessionStore = (*Store)(nil)

// SetQuota overrides the session quota for one user.
func (s *Store) SetQuota(username string, max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[username] = max
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return nil
}

func (s *Store) Create(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidPayload
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return domain.ErrSessionExists
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *Store) TouchLastActivity(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	session.LastActivity = at
	return true, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return false, nil
	}
	delete(s.sessions, sessionID)
	return true, nil
}

func (s *Store) DeleteAllForUser(ctx context.Context, username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, session := range s.sessions {
		if session.Username == username {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) ListActiveForUser(ctx context.Context, username string, ttl time.Duration) ([]*domain.Session, error) {
	s.mu.RLock()
	now := s.now()
	defer s.mu.RUnlock()
	var active []*domain.Session
	for _, session := range s.sessions {
		if session.Username == username && !session.IsExpired(now, ttl) {
			active = append(active, session.Clone())
		}
	}
	return active, nil
}

func (s *Store) ListAll(ctx context.Context, username string) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*domain.Session
	for _, session := range s.sessions {
		if username != "" && session.Username != username {
			continue
		}
		all = append(all, session.Clone())
	}
	return all, nil
}

func (s *Store) CountActive(ctx context.Context, username string, ttl time.Duration) (int, error) {
	s.mu.RLock()
	now := s.now()
	defer s.mu.RUnlock()
	count := 0
	for _, session := range s.sessions {
		if session.Username == username && !session.IsExpired(now, ttl) {
			count++
		}
	}
	return count, nil
}

func (s *Store) DeleteOldestActive(ctx context.Context, username string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	now := s.now()
	defer s.mu.Unlock()
	var oldest *domain.Session
	for _, session := range s.sessions {
		if session.Username != username || session.IsExpired(now, ttl) {
			continue
		}
		if oldest == nil || evictsBefore(session, oldest) {
			oldest = session
		}
	}
	if oldest == nil {
		return false, nil
	}
	delete(s.sessions, oldest.ID)
	return true, nil
}

// evictsBefore orders by last activity, breaking timestamp ties on the
// smaller session ID so eviction is reproducible.
func evictsBefore(a, b *domain.Session) bool {
	if a.LastActivity.Equal(b.LastActivity) {
		return a.ID < b.ID
	}
	return a.LastActivity.Before(b.LastActivity)
}

func (s *Store) DeleteExpired(ctx context.Context, ttl time.Duration) (int, error) {
	s.mu.Lock()
	now := s.now()
	defer s.mu.Unlock()
	count := 0
	for id, session := range s.sessions {
		if session.IsExpired(now, ttl) {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) MaxSessionsFor(ctx context.Context, username string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if max, ok := s.quotas[username]; ok && max > 0 {
		return max, nil
	}
	return s.defaultMax, nil
}
