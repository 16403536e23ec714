// Package bolt persists sessions in a single BoltDB file. It is the
// portable durable backend: no server process, safe across restarts, one
// writer at a time enforced by the database itself.
package bolt

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bboltdb "go.etcd.io/bbolt"

	"github.com/jborjar/paquetes/domain"
	"github.com/jborjar/paquetes/repository"
)

var bucketName = []byte("sessions")

type Store struct {
	db         *bboltdb.DB
	defaultMax int
	now        func() time.Time
}

// Open initializes the database file, creating parent directories and the
// sessions bucket as needed. A non-positive defaultMax means a quota of one.
func Open(path string, defaultMax int) (*Store, error) {
	if defaultMax <= 0 {
		defaultMax = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bboltdb.Open(path, 0o600, &bboltdb.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bboltdb.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		db:         db,
		defaultMax: defaultMax,
		now:        time.Now,
	}, nil
}

var _ repository.SessionStore = (*Store)(nil)

// SetClock replaces the time source used for activity-window checks.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return bboltdb.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bboltdb.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
}

func (s *Store) Create(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bboltdb.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get([]byte(session.ID)) != nil {
			return domain.ErrSessionExists
		}
		return b.Put([]byte(session.ID), payload)
	})
}

func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session *domain.Session
	err := s.db.View(func(tx *bboltdb.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(sessionID))
		if raw == nil {
			return domain.ErrSessionNotFound
		}
		session = &domain.Session{}
		return json.Unmarshal(raw, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) TouchLastActivity(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	updated := false
	err := s.db.Update(func(tx *bboltdb.Tx) error {
		b := tx.Bucket(bucketName)
		raw := b.Get([]byte(sessionID))
		if raw == nil {
			return nil
		}
		var session domain.Session
		if err := json.Unmarshal(raw, &session); err != nil {
			return err
		}
		session.LastActivity = at
		payload, err := json.Marshal(&session)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(sessionID), payload); err != nil {
			return err
		}
		updated = true
		return nil
	})
	return updated, err
}

func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	deleted := false
	err := s.db.Update(func(tx *bboltdb.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get([]byte(sessionID)) == nil {
			return nil
		}
		if err := b.Delete([]byte(sessionID)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *Store) DeleteAllForUser(ctx context.Context, username string) (int, error) {
	count := 0
	err := s.db.Update(func(tx *bboltdb.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var session domain.Session
			if err := json.Unmarshal(v, &session); err != nil {
				continue
			}
			if session.Username != username {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

func (s *Store) ListActiveForUser(ctx context.Context, username string, ttl time.Duration) ([]*domain.Session, error) {
	now := s.now()
	var active []*domain.Session
	err := s.scan(func(session *domain.Session) {
		if session.Username == username && !session.IsExpired(now, ttl) {
			active = append(active, session)
		}
	})
	return active, err
}

func (s *Store) ListAll(ctx context.Context, username string) ([]*domain.Session, error) {
	var all []*domain.Session
	err := s.scan(func(session *domain.Session) {
		if username == "" || session.Username == username {
			all = append(all, session)
		}
	})
	return all, err
}

func (s *Store) CountActive(ctx context.Context, username string, ttl time.Duration) (int, error) {
	now := s.now()
	count := 0
	err := s.scan(func(session *domain.Session) {
		if session.Username == username && !session.IsExpired(now, ttl) {
			count++
		}
	})
	return count, err
}

func (s *Store) DeleteOldestActive(ctx context.Context, username string, ttl time.Duration) (bool, error) {
	now := s.now()
	deleted := false
	err := s.db.Update(func(tx *bboltdb.Tx) error {
		b := tx.Bucket(bucketName)
		var oldest *domain.Session
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var session domain.Session
			if err := json.Unmarshal(v, &session); err != nil {
				continue
			}
			if session.Username != username || session.IsExpired(now, ttl) {
				continue
			}
			// Cursor order is key order, so on equal timestamps the first
			// hit already carries the smaller session ID.
			if oldest == nil || session.LastActivity.Before(oldest.LastActivity) {
				dup := session
				oldest = &dup
			}
		}
		if oldest == nil {
			return nil
		}
		if err := b.Delete([]byte(oldest.ID)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *Store) DeleteExpired(ctx context.Context, ttl time.Duration) (int, error) {
	now := s.now()
	count := 0
	err := s.db.Update(func(tx *bboltdb.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var session domain.Session
			if err := json.Unmarshal(v, &session); err != nil {
				continue
			}
			if !session.IsExpired(now, ttl) {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// MaxSessionsFor returns the configured default: the file backend carries
// no per-user quota table.
func (s *Store) MaxSessionsFor(ctx context.Context, username string) (int, error) {
	return s.defaultMax, nil
}

func (s *Store) scan(visit func(*domain.Session)) error {
	return s.db.View(func(tx *bboltdb.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, v []byte) error {
			var session domain.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return nil
			}
			visit(&session)
			return nil
		})
	})
}
