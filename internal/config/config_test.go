package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Auth.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL = %v, want 30m", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.MaxSessions != 1 {
		t.Errorf("MaxSessions = %d, want 1", cfg.Auth.MaxSessions)
	}
	if cfg.Auth.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q, want memory", cfg.Auth.StoreBackend)
	}
	if cfg.Auth.CookieName != "session_auth" {
		t.Errorf("CookieName = %q", cfg.Auth.CookieName)
	}
	if cfg.Database.URL == "" {
		t.Error("Database.URL should be derived from parts")
	}
	if cfg.Address() == "" {
		t.Error("Address should not be empty")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_SESSION_TTL_MINUTES", "5")
	t.Setenv("AUTH_DEFAULT_MAX_SESSIONS", "3")
	t.Setenv("AUTH_STORE_BACKEND", BackendBolt)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.SessionTTL != 5*time.Minute {
		t.Errorf("SessionTTL = %v, want 5m", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.MaxSessions != 3 {
		t.Errorf("MaxSessions = %d, want 3", cfg.Auth.MaxSessions)
	}
	if cfg.Auth.StoreBackend != BackendBolt {
		t.Errorf("StoreBackend = %q, want bolt", cfg.Auth.StoreBackend)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("AUTH_STORE_BACKEND", "etcd")
	if _, err := Load(); err == nil {
		t.Fatal("Load should reject an unknown backend")
	}
}
