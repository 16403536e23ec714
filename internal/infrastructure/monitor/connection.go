// Package monitor periodically probes the session store and its backing
// services so the health endpoint can answer without touching them inline.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	sessionUC "github.com/jborjar/paquetes/usecase/session"
)

type Monitor struct {
	sessions *sessionUC.Manager
	pg       *pgxpool.Pool
	redis    *redislib.Client

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	logger   *zap.Logger
}

// New wires the probes. pg and redis may be nil when the configured
// backend does not use them; they are then reported as healthy so a
// memory or bolt deployment is not permanently degraded.
func New(sessions *sessionUC.Manager, pg *pgxpool.Pool, redis *redislib.Client, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		sessions: sessions,
		pg:       pg,
		redis:    redis,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Store && m.status.PostgreSQL && m.status.Redis
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refresh()
	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) refresh() {
	storeOK, active := m.checkStore()
	status := Status{
		Store:          storeOK,
		ActiveSessions: active,
		PostgreSQL:     m.checkPostgres(),
		Redis:          m.checkRedis(),
		LastCheck:      time.Now(),
	}

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *Monitor) checkStore() (bool, int) {
	if m.sessions == nil {
		return false, 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	views, err := m.sessions.ListActive(ctx, "")
	if err != nil {
		m.logger.Warn("session store probe failed", zap.Error(err))
		return false, 0
	}
	return true, len(views)
}

func (m *Monitor) checkPostgres() bool {
	if m.pg == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.pg.Ping(ctx) == nil
}

func (m *Monitor) checkRedis() bool {
	if m.redis == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.redis.Ping(ctx).Err() == nil
}
