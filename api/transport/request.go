package transport

// LoginRequest carries credentials plus the scopes the client asks the new
// session to carry. When a credential validator is wired, the scopes it
// resolves for the user win over the requested ones.
type LoginRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Scopes   []string `json:"scopes,omitempty"`
}

// LogoutRequest optionally widens a logout to every session of the
// authenticated user.
type LogoutRequest struct {
	Everywhere bool `json:"everywhere,omitempty"`
}

// CleanupResponse reports how many expired sessions a sweep removed.
type CleanupResponse struct {
	Removed int `json:"removed"`
}

// RevokedResponse reports how many sessions a bulk revocation removed.
type RevokedResponse struct {
	Username string `json:"username"`
	Revoked  int    `json:"revoked"`
}
