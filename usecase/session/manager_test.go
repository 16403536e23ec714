package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jborjar/paquetes/domain"
	"github.com/jborjar/paquetes/repository/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *memory.Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := memory.New(1)
	store.SetClock(clock.Now)
	mgr := New(store, ttl, nil)
	mgr.SetClock(clock.Now)
	return mgr, store, clock
}

func TestCreateComputesSlidingExpiry(t *testing.T) {
	mgr, _, clock := newTestManager(t, 30*time.Minute)

	view, err := mgr.Create(context.Background(), "alice", []string{"billing:read"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if view.Username != "alice" {
		t.Fatalf("username = %q, want alice", view.Username)
	}
	if view.SessionID == "" {
		t.Fatal("expected a generated session id")
	}
	if want := clock.Now().Add(30 * time.Minute); !view.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", view.ExpiresAt, want)
	}
	if !view.ExpiresAt.Equal(view.LastActivity.Add(30 * time.Minute)) {
		t.Fatal("expires_at must equal last_activity + ttl")
	}
	if view.Scopes == nil || *view.Scopes != "billing:read" {
		t.Fatalf("scopes = %v, want billing:read", view.Scopes)
	}
}

func TestValidatePeekIsIdempotent(t *testing.T) {
	mgr, _, clock := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	created, err := mgr.Create(ctx, "alice", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Advance(5 * time.Minute)
	for i := 0; i < 3; i++ {
		view, err := mgr.Validate(ctx, created.SessionID, false)
		if err != nil {
			t.Fatalf("Validate peek %d: %v", i, err)
		}
		if !view.LastActivity.Equal(created.LastActivity) {
			t.Fatalf("peek %d changed last_activity: %v != %v", i, view.LastActivity, created.LastActivity)
		}
	}
}

func TestValidateRenewSlidesExpiry(t *testing.T) {
	mgr, _, clock := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	created, err := mgr.Create(ctx, "alice", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Advance(10 * time.Minute)
	renewed, err := mgr.Validate(ctx, created.SessionID, true)
	if err != nil {
		t.Fatalf("Validate renew: %v", err)
	}
	if !renewed.LastActivity.Equal(clock.Now()) {
		t.Fatalf("renew did not bump last_activity: %v", renewed.LastActivity)
	}
	if renewed.ExpiresAt.Before(created.ExpiresAt) {
		t.Fatalf("renewed expiry %v earlier than original %v", renewed.ExpiresAt, created.ExpiresAt)
	}

	peeked, err := mgr.Validate(ctx, created.SessionID, false)
	if err != nil {
		t.Fatalf("Validate peek after renew: %v", err)
	}
	if peeked.ExpiresAt.Before(renewed.ExpiresAt) {
		t.Fatalf("peek expiry %v earlier than renewed %v", peeked.ExpiresAt, renewed.ExpiresAt)
	}
	if !peeked.CreatedAt.Equal(created.CreatedAt) {
		t.Fatal("created_at must be immutable")
	}
}

func TestValidateUnknownSession(t *testing.T) {
	mgr, _, _ := newTestManager(t, 30*time.Minute)

	_, err := mgr.Validate(context.Background(), "no-such-session", true)
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestExpiredSessionSurvivesUntilCleanup(t *testing.T) {
	mgr, store, clock := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	created, err := mgr.Create(ctx, "alice", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Advance(31 * time.Minute)

	if _, err := mgr.Validate(ctx, created.SessionID, true); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expired session err = %v, want ErrSessionNotFound", err)
	}

	// Logically dead but still physically present.
	all, err := store.ListAll(ctx, "")
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("record count before cleanup = %d, want 1", len(all))
	}

	removed, err := mgr.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Cleanup removed %d, want 1", removed)
	}
	all, _ = store.ListAll(ctx, "")
	if len(all) != 0 {
		t.Fatalf("record count after cleanup = %d, want 0", len(all))
	}
}

func TestQuotaEvictsLongestIdleSession(t *testing.T) {
	mgr, store, clock := newTestManager(t, 30*time.Minute)
	store.SetQuota("bob", 2)
	ctx := context.Background()

	s1, err := mgr.Create(ctx, "bob", nil)
	if err != nil {
		t.Fatalf("create s1: %v", err)
	}
	clock.Advance(time.Minute)
	s2, err := mgr.Create(ctx, "bob", nil)
	if err != nil {
		t.Fatalf("create s2: %v", err)
	}
	clock.Advance(time.Minute)
	s3, err := mgr.Create(ctx, "bob", nil)
	if err != nil {
		t.Fatalf("create s3: %v", err)
	}

	active, err := mgr.ListActive(ctx, "bob")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active sessions = %d, want 2", len(active))
	}
	ids := map[string]bool{}
	for _, v := range active {
		ids[v.SessionID] = true
	}
	if ids[s1.SessionID] {
		t.Fatal("s1 should have been evicted as the longest idle")
	}
	if !ids[s2.SessionID] || !ids[s3.SessionID] {
		t.Fatalf("expected s2 and s3 to survive, got %v", ids)
	}
}

func TestDefaultQuotaKeepsSingleSession(t *testing.T) {
	mgr, _, clock := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	var last *domain.SessionView
	for i := 0; i < 3; i++ {
		view, err := mgr.Create(ctx, "carol", nil)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		last = view
		clock.Advance(time.Second)
	}

	active, err := mgr.ListActive(ctx, "carol")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active sessions = %d, want 1", len(active))
	}
	if active[0].SessionID != last.SessionID {
		t.Fatal("the newest session must always be admitted")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	mgr, _, _ := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	created, err := mgr.Create(ctx, "alice", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	deleted, err := mgr.Delete(ctx, created.SessionID)
	if err != nil || !deleted {
		t.Fatalf("first delete = (%v, %v), want (true, nil)", deleted, err)
	}
	deleted, err = mgr.Delete(ctx, created.SessionID)
	if err != nil || deleted {
		t.Fatalf("second delete = (%v, %v), want (false, nil)", deleted, err)
	}
	deleted, err = mgr.Delete(ctx, "never-existed")
	if err != nil || deleted {
		t.Fatalf("unknown delete = (%v, %v), want (false, nil)", deleted, err)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	mgr, store, _ := newTestManager(t, 30*time.Minute)
	store.SetQuota("bob", 5)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := mgr.Create(ctx, "bob", nil); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := mgr.Create(ctx, "alice", nil); err != nil {
		t.Fatalf("create alice: %v", err)
	}

	count, err := mgr.DeleteAllForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("DeleteAllForUser: %v", err)
	}
	if count != 3 {
		t.Fatalf("deleted %d, want 3", count)
	}

	remaining, _ := mgr.ListActive(ctx, "")
	if len(remaining) != 1 || remaining[0].Username != "alice" {
		t.Fatalf("remaining = %v, want only alice", remaining)
	}
}

func TestListActiveFiltersByUser(t *testing.T) {
	mgr, _, _ := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	if _, err := mgr.Create(ctx, "alice", nil); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := mgr.Create(ctx, "bob", nil); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	onlyAlice, err := mgr.ListActive(ctx, "alice")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(onlyAlice) != 1 || onlyAlice[0].Username != "alice" {
		t.Fatalf("filtered list = %v, want one alice session", onlyAlice)
	}

	everyone, err := mgr.ListActive(ctx, "")
	if err != nil {
		t.Fatalf("ListActive all: %v", err)
	}
	if len(everyone) != 2 {
		t.Fatalf("unfiltered list = %d sessions, want 2", len(everyone))
	}
}

// vanishingStore simulates a concurrent delete landing between the Get and
// the renewal touch.
type vanishingStore struct {
	*memory.Store
}

func (s *vanishingStore) TouchLastActivity(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	return false, nil
}

func TestRenewOnVanishedRowIsNotFound(t *testing.T) {
	clock := newFakeClock()
	inner := memory.New(1)
	inner.SetClock(clock.Now)
	mgr := New(&vanishingStore{Store: inner}, 30*time.Minute, nil)
	mgr.SetClock(clock.Now)
	ctx := context.Background()

	created, err := mgr.Create(ctx, "alice", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := mgr.Validate(ctx, created.SessionID, true); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}

	// A read-only peek still succeeds: the record is present and live.
	if _, err := mgr.Validate(ctx, created.SessionID, false); err != nil {
		t.Fatalf("peek after touch failure: %v", err)
	}
}

// failingStore reports a backend outage on reads.
type failingStore struct {
	*memory.Store
	err error
}

func (s *failingStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return nil, s.err
}

func TestStorageFailurePropagatesUnmodified(t *testing.T) {
	outage := errors.New("connection refused")
	mgr := New(&failingStore{Store: memory.New(1), err: outage}, 30*time.Minute, nil)

	_, err := mgr.Validate(context.Background(), "anything", true)
	if !errors.Is(err, outage) {
		t.Fatalf("err = %v, want the storage error", err)
	}
	if errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatal("storage failure must not be folded into not-found")
	}
}
