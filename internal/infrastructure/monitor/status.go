package monitor

import "time"

type Status struct {
	Store          bool      `json:"store"`
	ActiveSessions int       `json:"active_sessions"`
	PostgreSQL     bool      `json:"postgresql"`
	Redis          bool      `json:"redis"`
	LastCheck      time.Time `json:"last_check"`
}
