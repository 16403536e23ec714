// Package session implements the session lifecycle policy on top of the
// storage contract: sliding expiration, per-user quota eviction, and the
// housekeeping sweep.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jborjar/paquetes/domain"
	"github.com/jborjar/paquetes/repository"
)

// Manager orchestrates session lifecycle on a SessionStore. It holds no
// state of its own beyond configuration; all mutation goes through the
// store, one call at a time.
type Manager struct {
	store  repository.SessionStore
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// New builds a manager with the given sliding TTL. A non-positive TTL
// falls back to 30 minutes.
func New(store repository.SessionStore, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// TTL returns the configured sliding window.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create issues a new session for the user. When the user is at quota, the
// longest-idle active session is evicted so the new one is always admitted.
// The count/evict/create sequence is not transactional; under concurrent
// creates the quota may transiently overshoot by one until the next sweep.
func (m *Manager) Create(ctx context.Context, username string, scopes []string) (*domain.SessionView, error) {
	if err := m.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	maxSessions, err := m.store.MaxSessionsFor(ctx, username)
	if err != nil {
		return nil, err
	}
	active, err := m.store.CountActive(ctx, username, m.ttl)
	if err != nil {
		return nil, err
	}

	for active >= maxSessions {
		deleted, err := m.store.DeleteOldestActive(ctx, username, m.ttl)
		if err != nil {
			return nil, err
		}
		if !deleted {
			// Count and rows disagree, likely a racing delete. Stop
			// evicting rather than spinning.
			break
		}
		m.logger.Debug("evicted oldest session", zap.String("username", username))
		active--
	}

	now := m.now()
	record := &domain.Session{
		ID:           uuid.NewString(),
		Username:     username,
		Scopes:       scopes,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := m.store.Create(ctx, record); err != nil {
		return nil, err
	}

	m.logger.Info("session created",
		zap.String("session_id", record.ID),
		zap.String("username", username))
	return record.View(m.ttl), nil
}

// Validate checks a session and, when renew is set, slides its expiration
// forward. Expired and unknown sessions both come back as
// domain.ErrSessionNotFound: callers cannot tell them apart. A read-only
// peek (renew=false) never mutates state.
func (m *Manager) Validate(ctx context.Context, sessionID string, renew bool) (*domain.SessionView, error) {
	record, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if record.IsExpired(now, m.ttl) {
		return nil, domain.ErrSessionNotFound
	}

	if renew {
		updated, err := m.store.TouchLastActivity(ctx, sessionID, now)
		if err != nil {
			return nil, err
		}
		if !updated {
			// The row vanished between Get and Touch; treat the whole
			// call as not-found.
			return nil, domain.ErrSessionNotFound
		}
		record.LastActivity = now
	}

	return record.View(m.ttl), nil
}

// Delete removes one session (logout). Idempotent: deleting an unknown
// session reports false, never an error.
func (m *Manager) Delete(ctx context.Context, sessionID string) (bool, error) {
	deleted, err := m.store.Delete(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if deleted {
		m.logger.Info("session deleted", zap.String("session_id", sessionID))
	}
	return deleted, nil
}

// DeleteAllForUser removes every session of the user ("log out everywhere").
func (m *Manager) DeleteAllForUser(ctx context.Context, username string) (int, error) {
	count, err := m.store.DeleteAllForUser(ctx, username)
	if err != nil {
		return 0, err
	}
	m.logger.Info("user sessions deleted",
		zap.String("username", username),
		zap.Int("count", count))
	return count, nil
}

// Cleanup physically removes logically-expired rows. Meant for a periodic
// trigger, never for the validation path.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	count, err := m.store.DeleteExpired(ctx, m.ttl)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		m.logger.Info("expired sessions removed", zap.Int("count", count))
	}
	return count, nil
}

// ListActive enumerates live sessions, optionally for one user. Expiry is
// re-checked here against the manager's clock regardless of any filtering
// the backend applied.
func (m *Manager) ListActive(ctx context.Context, username string) ([]*domain.SessionView, error) {
	records, err := m.store.ListAll(ctx, username)
	if err != nil {
		return nil, err
	}

	now := m.now()
	views := make([]*domain.SessionView, 0, len(records))
	for _, record := range records {
		if record.IsExpired(now, m.ttl) {
			continue
		}
		views = append(views, record.View(m.ttl))
	}
	return views, nil
}
