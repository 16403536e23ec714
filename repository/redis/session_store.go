// Package redis stores sessions in Redis hashes with per-user and global
// membership indexes. Records carry no Redis TTL: expiry is a read-time
// computation against last_activity, and physical removal is left to the
// housekeeping sweep, matching the storage contract.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/jborjar/paquetes/domain"
	"github.com/jborjar/paquetes/repository"
)

const (
	sessionKeyPrefix = "session:"
	userIndexPrefix  = "sessions:user:"
	quotaKeyPrefix   = "sessions:quota:"
	allIndexKey      = "sessions:all"
)

// createScript inserts the record only when the key is free, updating both
// indexes in the same atomic step.
var createScript = redislib.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1],
	"username", ARGV[1],
	"scopes", ARGV[2],
	"created_at", ARGV[3],
	"last_activity", ARGV[4])
redis.call("SADD", KEYS[2], ARGV[5])
redis.call("SADD", KEYS[3], ARGV[5])
return 1
`)

// touchScript bumps last_activity only while the record still exists.
var touchScript = redislib.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "last_activity", ARGV[1])
return 1
`)

type Store struct {
	client     *redislib.Client
	defaultMax int
	now        func() time.Time
}

// New wraps a connected client. A non-positive defaultMax means a quota of
// one concurrent session per user.
func New(client *redislib.Client, defaultMax int) *Store {
	if defaultMax <= 0 {
		defaultMax = 1
	}
	return &Store{
		client:     client,
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

// SetQuota stores a per-user quota override.
func (s *Store) SetQuota(ctx context.Context, username string, max int) error {
	return s.client.Set(ctx, quotaKeyPrefix+username, max, 0).Err()
}

// EnsureSchema is a connectivity check: Redis needs no schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Create(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidPayload
	}
	scopes, err := json.Marshal(session.Scopes)
	if err != nil {
		return err
	}
	inserted, err := createScript.Run(ctx, s.client,
		[]string{sessionKey(session.ID), userIndexKey(session.Username), allIndexKey},
		session.Username,
		string(scopes),
		session.CreatedAt.Format(time.RFC3339Nano),
		session.LastActivity.Format(time.RFC3339Nano),
		session.ID,
	).Int()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return parseSession(sessionID, fields)
}

func (s *Store) TouchLastActivity(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	updated, err := touchScript.Run(ctx, s.client,
		[]string{sessionKey(sessionID)},
		at.Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return false, err
	}
	return updated == 1, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
		pipe.Del(ctx, sessionKey(sessionID))
		pipe.SRem(ctx, userIndexKey(session.Username), sessionID)
		pipe.SRem(ctx, allIndexKey, sessionID)
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) DeleteAllForUser(ctx context.Context, username string) (int, error) {
	ids, err := s.client.SMembers(ctx, userIndexKey(username)).Result()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		deleted, err := s.Delete(ctx, id)
		if err != nil {
			return count, err
		}
		if deleted {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListActiveForUser(ctx context.Context, username string, ttl time.Duration) ([]*domain.Session, error) {
	sessions, err := s.sessionsByIndex(ctx, userIndexKey(username))
	if err != nil {
		return nil, err
	}
	now := s.now()
	var active []*domain.Session
	for _, session := range sessions {
		if !session.IsExpired(now, ttl) {
			active = append(active, session)
		}
	}
	return active, nil
}

func (s *Store) ListAll(ctx context.Context, username string) ([]*domain.Session, error) {
	if username != "" {
		return s.sessionsByIndex(ctx, userIndexKey(username))
	}
	return s.sessionsByIndex(ctx, allIndexKey)
}

func (s *Store) CountActive(ctx context.Context, username string, ttl time.Duration) (int, error) {
	active, err := s.ListActiveForUser(ctx, username, ttl)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

func (s *Store) DeleteOldestActive(ctx context.Context, username string, ttl time.Duration) (bool, error) {
	active, err := s.ListActiveForUser(ctx, username, ttl)
	if err != nil {
		return false, err
	}
	var oldest *domain.Session
	for _, session := range active {
		if oldest == nil ||
			session.LastActivity.Before(oldest.LastActivity) ||
			(session.LastActivity.Equal(oldest.LastActivity) && session.ID < oldest.ID) {
			oldest = session
		}
	}
	if oldest == nil {
		return false, nil
	}
	return s.Delete(ctx, oldest.ID)
}

func (s *Store) DeleteExpired(ctx context.Context, ttl time.Duration) (int, error) {
	sessions, err := s.sessionsByIndex(ctx, allIndexKey)
	if err != nil {
		return 0, err
	}
	now := s.now()
	count := 0
	for _, session := range sessions {
		if !session.IsExpired(now, ttl) {
			continue
		}
		deleted, err := s.Delete(ctx, session.ID)
		if err != nil {
			return count, err
		}
		if deleted {
			count++
		}
	}
	return count, nil
}

func (s *Store) MaxSessionsFor(ctx context.Context, username string) (int, error) {
	raw, err := s.client.Get(ctx, quotaKeyPrefix+username).Result()
	if err != nil {
		if err == redislib.Nil {
			return s.defaultMax, nil
		}
		return 0, err
	}
	max, err := strconv.Atoi(raw)
	if err != nil || max <= 0 {
		return s.defaultMax, nil
	}
	return max, nil
}

func (s *Store) sessionsByIndex(ctx context.Context, indexKey string) ([]*domain.Session, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	var sessions []*domain.Session
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				// Stale index entry from a racing delete.
				continue
			}
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func parseSession(id string, fields map[string]string) (*domain.Session, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "corrupt session record", err)
	}
	lastActivity, err := time.Parse(time.RFC3339Nano, fields["last_activity"])
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "corrupt session record", err)
	}
	var scopes []string
	if raw := fields["scopes"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &scopes); err != nil {
			return nil, domain.WrapError(domain.ErrCodeInternal, "corrupt session record", err)
		}
	}
	return &domain.Session{
		ID:           id,
		Username:     fields["username"],
		Scopes:       scopes,
		CreatedAt:    createdAt,
		LastActivity: lastActivity,
	}, nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func userIndexKey(username string) string {
	return userIndexPrefix + username
}
