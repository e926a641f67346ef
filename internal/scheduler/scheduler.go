package scheduler

import (
	"context"
	"time"

	"esign-backend/internal/envelopes"
	"esign-backend/internal/shared/telemetry"
)

// Scheduler runs the periodic envelope maintenance jobs: expiring overdue
// envelopes, dispatching reminders, and purging deleted artifacts.
type Scheduler struct {
	Svc      *envelopes.Service
	Interval time.Duration
}

// New builds a scheduler with the given tick interval.
func New(svc *envelopes.Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{Svc: svc, Interval: interval}
}

// Run executes one pass immediately and then ticks until the context is
// cancelled. Each job failure is logged and the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes every maintenance job a single time.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()
	telemetry.Info("scheduler.pass.started", nil)

	expired, err := s.Svc.ExpireOverdue(ctx)
	if err != nil {
		telemetry.Error("scheduler.expire_failed", map[string]any{"error": err.Error()})
	}
	reminded, err := s.Svc.SendDueReminders(ctx)
	if err != nil {
		telemetry.Error("scheduler.reminders_failed", map[string]any{"error": err.Error()})
	}
	purged, err := s.Svc.PurgeDeleted(ctx)
	if err != nil {
		telemetry.Error("scheduler.purge_failed", map[string]any{"error": err.Error()})
	}

	telemetry.Info("scheduler.pass.finished", map[string]any{
		"expired":     expired,
		"reminded":    reminded,
		"purged":      purged,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
