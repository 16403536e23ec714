package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jborjar/paquetes/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "sessions.db"), 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedSession(id, username string, at time.Time) *domain.Session {
	return &domain.Session{
		ID:           id,
		Username:     username,
		CreatedAt:    at,
		LastActivity: at,
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	original := seedSession("s1", "alice", now)
	original.Scopes = []string{"billing:read,write", "reports:read"}
	if err := store.Create(ctx, original); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Username != "alice" || len(got.Scopes) != 2 {
		t.Fatalf("round trip lost data: %+v", got)
	}
	if !got.CreatedAt.Equal(now) || !got.LastActivity.Equal(now) {
		t.Fatalf("timestamps drifted: %+v", got)
	}

	if err := store.Create(ctx, seedSession("s1", "alice", now)); !errors.Is(err, domain.ErrSessionExists) {
		t.Fatalf("duplicate create err = %v, want ErrSessionExists", err)
	}
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestTouchAndDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	if err := store.Create(ctx, seedSession("s1", "alice", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	bumped := now.Add(time.Minute)
	updated, err := store.TouchLastActivity(ctx, "s1", bumped)
	if err != nil || !updated {
		t.Fatalf("touch = (%v, %v), want (true, nil)", updated, err)
	}
	got, _ := store.Get(ctx, "s1")
	if !got.LastActivity.Equal(bumped) {
		t.Fatalf("last_activity = %v, want %v", got.LastActivity, bumped)
	}

	if updated, _ := store.TouchLastActivity(ctx, "gone", bumped); updated {
		t.Fatal("touch on a missing row must report false")
	}

	deleted, err := store.Delete(ctx, "s1")
	if err != nil || !deleted {
		t.Fatalf("delete = (%v, %v), want (true, nil)", deleted, err)
	}
	if deleted, _ := store.Delete(ctx, "s1"); deleted {
		t.Fatal("second delete must report false")
	}
}

func TestActiveWindowQueries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now()
	ttl := 30 * time.Minute

	store.Create(ctx, seedSession("live1", "bob", base))
	store.Create(ctx, seedSession("live2", "bob", base.Add(-time.Minute)))
	store.Create(ctx, seedSession("dead", "bob", base.Add(-time.Hour)))
	store.Create(ctx, seedSession("other", "alice", base))

	count, err := store.CountActive(ctx, "bob", ttl)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if count != 2 {
		t.Fatalf("active count = %d, want 2", count)
	}

	active, err := store.ListActiveForUser(ctx, "bob", ttl)
	if err != nil {
		t.Fatalf("ListActiveForUser: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active list = %d, want 2", len(active))
	}

	all, err := store.ListAll(ctx, "bob")
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListAll(bob) = %d, want 3", len(all))
	}
}

func TestDeleteOldestActive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now()
	ttl := 30 * time.Minute

	store.Create(ctx, seedSession("newer", "bob", base))
	store.Create(ctx, seedSession("older", "bob", base.Add(-time.Minute)))
	store.Create(ctx, seedSession("dead", "bob", base.Add(-time.Hour)))

	deleted, err := store.DeleteOldestActive(ctx, "bob", ttl)
	if err != nil || !deleted {
		t.Fatalf("delete oldest = (%v, %v), want (true, nil)", deleted, err)
	}
	if _, err := store.Get(ctx, "older"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatal("the oldest active session should be gone")
	}
	if _, err := store.Get(ctx, "dead"); err != nil {
		t.Fatal("expired sessions are not eviction candidates")
	}

	// Timestamp tie breaks on the smaller session ID.
	store2 := openTestStore(t)
	store2.Create(ctx, seedSession("zz", "bob", base))
	store2.Create(ctx, seedSession("aa", "bob", base))
	if deleted, _ := store2.DeleteOldestActive(ctx, "bob", ttl); !deleted {
		t.Fatal("expected a deletion")
	}
	if _, err := store2.Get(ctx, "aa"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatal("tie must evict the lexicographically smaller id")
	}
}

func TestDeleteExpiredAndDeleteAll(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	store.Create(ctx, seedSession("live", "alice", base))
	store.Create(ctx, seedSession("dead1", "alice", base.Add(-time.Hour)))
	store.Create(ctx, seedSession("dead2", "bob", base.Add(-time.Hour)))

	count, err := store.DeleteExpired(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if count != 2 {
		t.Fatalf("swept %d, want 2", count)
	}

	store.Create(ctx, seedSession("extra", "alice", base))
	removed, err := store.DeleteAllForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("DeleteAllForUser: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed %d, want 2", removed)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.db")
	ctx := context.Background()
	now := time.Now()

	store, err := Open(path, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Create(ctx, seedSession("s1", "alice", now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.Get(ctx, "s1"); err != nil {
		t.Fatalf("session lost across reopen: %v", err)
	}
}

func TestMaxSessionsForUsesDefault(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "sessions.db"), 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if max, _ := store.MaxSessionsFor(context.Background(), "anyone"); max != 4 {
		t.Fatalf("quota = %d, want 4", max)
	}
}
