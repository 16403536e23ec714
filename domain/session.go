package domain

import (
	"strings"
	"time"
)

// Session is the persisted authentication session. LastActivity is the only
// field that changes after creation; the expiry deadline is derived from it
// at read time and never stored.
type Session struct {
	ID           string    `json:"session_id"`
	Username     string    `json:"username"`
	Scopes       []string  `json:"scopes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// ExpiresAt computes the sliding deadline for the given TTL.
func (s *Session) ExpiresAt(ttl time.Duration) time.Time {
	return s.LastActivity.Add(ttl)
}

// IsExpired reports whether the session is logically dead at the reference
// instant. A session physically present in storage can still be expired.
func (s *Session) IsExpired(reference time.Time, ttl time.Duration) bool {
	if s == nil {
		return true
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return reference.After(s.ExpiresAt(ttl))
}

// Clone returns an independent copy, including the scope slice.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	dup := *s
	if s.Scopes != nil {
		dup.Scopes = append([]string(nil), s.Scopes...)
	}
	return &dup
}

// SessionView is the wire shape returned to callers. Timestamps marshal as
// ISO-8601 and scopes collapse to the legacy comma-joined string, or null
// when the session carries none.
type SessionView struct {
	SessionID    string    `json:"session_id"`
	Username     string    `json:"username"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       *string   `json:"scopes"`
}

// View renders the session with a freshly computed expiry.
func (s *Session) View(ttl time.Duration) *SessionView {
	if s == nil {
		return nil
	}
	view := &SessionView{
		SessionID:    s.ID,
		Username:     s.Username,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt(ttl),
	}
	if len(s.Scopes) > 0 {
		joined := strings.Join(s.Scopes, ",")
		view.Scopes = &joined
	}
	return view
}
