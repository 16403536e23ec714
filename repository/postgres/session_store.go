// Package postgres stores sessions in the user_sessions table. The quota
// lookup reads users.max_sessions, so operators can raise limits per user
// without touching the service.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jborjar/paquetes/domain"
	"github.com/jborjar/paquetes/repository"
)

type Store struct {
	pool       *pgxpool.Pool
	defaultMax int
	now        func() time.Time
}

// New wraps a connected pool. A non-positive defaultMax means a quota of
// one concurrent session per user.
func New(pool *pgxpool.Pool, defaultMax int) *Store {
	if defaultMax <= 0 {
		defaultMax = 1
	}
	return &Store{
		pool:       pool,
		defaultMax: defaultMax,
		now:        time.Now,
	}
}

var _ repository.SessionStore = (*Store)(nil)

// SetClock replaces the time source used for activity-window checks.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS user_sessions (
		session_id    TEXT PRIMARY KEY,
		username      TEXT NOT NULL,
		scopes        JSONB,
		created_at    TIMESTAMPTZ NOT NULL,
		last_activity TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_user_sessions_username
		ON user_sessions (username, last_activity);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *Store) Create(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidPayload
	}
	const query = `
		INSERT INTO user_sessions (session_id, username, scopes, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query,
		session.ID,
		session.Username,
		marshalScopes(session.Scopes),
		session.CreatedAt,
		session.LastActivity,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrSessionExists
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	const query = `
		SELECT session_id, username, scopes, created_at, last_activity
		FROM user_sessions
		WHERE session_id = $1
	`
	session, err := scanSession(s.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *Store) TouchLastActivity(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	const query = `
		UPDATE user_sessions
		SET last_activity = $2
		WHERE session_id = $1
	`
	tag, err := s.pool.Exec(ctx, query, sessionID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteAllForUser(ctx context.Context, username string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_sessions WHERE username = $1`, username)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ListActiveForUser(ctx context.Context, username string, ttl time.Duration) ([]*domain.Session, error) {
	const query = `
		SELECT session_id, username, scopes, created_at, last_activity
		FROM user_sessions
		WHERE username = $1 AND last_activity >= $2
		ORDER BY last_activity
	`
	return s.querySessions(ctx, query, username, s.cutoff(ttl))
}

func (s *Store) ListAll(ctx context.Context, username string) ([]*domain.Session, error) {
	if username != "" {
		const query = `
			SELECT session_id, username, scopes, created_at, last_activity
			FROM user_sessions
			WHERE username = $1
			ORDER BY last_activity
		`
		return s.querySessions(ctx, query, username)
	}
	const query = `
		SELECT session_id, username, scopes, created_at, last_activity
		FROM user_sessions
		ORDER BY last_activity
	`
	return s.querySessions(ctx, query)
}

func (s *Store) CountActive(ctx context.Context, username string, ttl time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM user_sessions
		WHERE username = $1 AND last_activity >= $2
	`
	var count int
	if err := s.pool.QueryRow(ctx, query, username, s.cutoff(ttl)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) DeleteOldestActive(ctx context.Context, username string, ttl time.Duration) (bool, error) {
	const query = `
		DELETE FROM user_sessions
		WHERE session_id = (
			SELECT session_id
			FROM user_sessions
			WHERE username = $1 AND last_activity >= $2
			ORDER BY last_activity, session_id
			LIMIT 1
		)
	`
	tag, err := s.pool.Exec(ctx, query, username, s.cutoff(ttl))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteExpired(ctx context.Context, ttl time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM user_sessions WHERE last_activity < $1`, s.cutoff(ttl))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) MaxSessionsFor(ctx context.Context, username string) (int, error) {
	const query = `SELECT max_sessions FROM users WHERE username = $1`
	var max *int
	err := s.pool.QueryRow(ctx, query, username).Scan(&max)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.defaultMax, nil
		}
		return 0, err
	}
	if max == nil || *max <= 0 {
		return s.defaultMax, nil
	}
	return *max, nil
}

func (s *Store) cutoff(ttl time.Duration) time.Time {
	return s.now().Add(-ttl)
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]*domain.Session, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var session domain.Session
	var scopes []byte
	if err := row.Scan(
		&session.ID,
		&session.Username,
		&scopes,
		&session.CreatedAt,
		&session.LastActivity,
	); err != nil {
		return nil, err
	}
	if len(scopes) > 0 {
		_ = json.Unmarshal(scopes, &session.Scopes)
	}
	return &session, nil
}

func marshalScopes(scopes []string) []byte {
	if len(scopes) == 0 {
		return nil
	}
	b, err := json.Marshal(scopes)
	if err != nil {
		return nil
	}
	return b
}
