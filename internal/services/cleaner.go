// Package services hosts the background jobs that run beside the HTTP
// server, currently the scheduled sweep of expired sessions.
package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	sessionUC "github.com/jborjar/paquetes/usecase/session"
)

// Cleaner periodically removes logically-expired sessions from the store.
// Expired sessions are already invisible to validation; the sweep only
// reclaims storage, so a missed run is harmless.
type Cleaner struct {
	sessions *sessionUC.Manager
	logger   *zap.Logger
	cron     *cron.Cron
	schedule string
}

// NewCleaner schedules the sweep with a cron spec such as "@every 5m".
func NewCleaner(sessions *sessionUC.Manager, schedule string, logger *zap.Logger) *Cleaner {
	if schedule == "" {
		schedule = "@every 5m"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cleaner{
		sessions: sessions,
		logger:   logger,
		cron:     cron.New(),
		schedule: schedule,
	}

	_, _ = c.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Sweep(ctx); err != nil {
			c.logger.Error("session sweep failed", zap.Error(err))
		}
	})

	return c
}

// Start launches the cron scheduler.
func (c *Cleaner) Start() {
	if c == nil || c.cron == nil {
		return
	}
	c.cron.Start()
	c.logger.Info("session cleaner started", zap.String("schedule", c.schedule))
}

// Stop waits for a running sweep to finish, bounded by ctx.
func (c *Cleaner) Stop(ctx context.Context) {
	if c == nil || c.cron == nil {
		return
	}
	stopCtx := c.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	c.logger.Info("session cleaner stopped")
}

// Sweep runs one pass synchronously.
func (c *Cleaner) Sweep(ctx context.Context) error {
	if c == nil || c.sessions == nil {
		return nil
	}
	removed, err := c.sessions.Cleanup(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.logger.Info("expired sessions removed", zap.Int("count", removed))
	}
	return nil
}
