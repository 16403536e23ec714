package repository

import (
	"context"
	"time"

	"github.com/jborjar/paquetes/domain"
)

// SessionStore is the storage contract the session manager depends on.
//
// Each call must be atomic with respect to itself, but implementations are
// not expected to provide cross-call transactions: the manager's
// count/evict/create sequence tolerates the resulting races. Get reports a
// missing row with domain.ErrSessionNotFound; I/O and connection failures
// surface as their own errors and are never folded into not-found.
type SessionStore interface {
	// EnsureSchema performs idempotent initialization (file, table, index).
	EnsureSchema(ctx context.Context) error

	// Create inserts a new record, failing with domain.ErrSessionExists on
	// an ID collision.
	Create(ctx context.Context, session *domain.Session) error

	// Get returns the record regardless of logical expiry.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// TouchLastActivity updates only the activity timestamp, reporting
	// false when the row no longer exists.
	TouchLastActivity(ctx context.Context, sessionID string, at time.Time) (bool, error)

	// Delete removes one record, reporting whether anything was deleted.
	Delete(ctx context.Context, sessionID string) (bool, error)

	// DeleteAllForUser removes every record of the user and returns the count.
	DeleteAllForUser(ctx context.Context, username string) (int, error)

	// ListActiveForUser returns the user's sessions still inside the
	// sliding window. Backends may pre-filter; the manager re-checks expiry.
	ListActiveForUser(ctx context.Context, username string, ttl time.Duration) ([]*domain.Session, error)

	// ListAll returns every record, optionally filtered by username
	// (empty string means no filter).
	ListAll(ctx context.Context, username string) ([]*domain.Session, error)

	// CountActive counts the user's sessions inside the sliding window.
	CountActive(ctx context.Context, username string, ttl time.Duration) (int, error)

	// DeleteOldestActive removes exactly one record: the active session
	// with the smallest last_activity. Ties break on the lexicographically
	// smallest session ID so eviction stays deterministic.
	DeleteOldestActive(ctx context.Context, username string, ttl time.Duration) (bool, error)

	// DeleteExpired physically removes logically-expired rows. Housekeeping
	// only, never called on the validation path.
	DeleteExpired(ctx context.Context, ttl time.Duration) (int, error)

	// MaxSessionsFor returns the concurrent-session quota for the user.
	// Backends without per-user configuration return a fixed default.
	MaxSessionsFor(ctx context.Context, username string) (int, error)
}
