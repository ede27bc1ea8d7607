// Package scheduler starts recurring project runs from cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"github.com/mtzanidakis/helios/internal/config"
	"github.com/mtzanidakis/helios/internal/engine"
	"github.com/mtzanidakis/helios/internal/store"
)

type Scheduler struct {
	store        *store.Store
	engine       *engine.Engine
	pollInterval time.Duration
	reloadCh     chan struct{}
}

func New(s *store.Store, eng *engine.Engine, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:        s,
		engine:       eng,
		pollInterval: cfg.PollInterval,
		reloadCh:     make(chan struct{}, 1),
	}
}

// ValidateCron checks a cron expression before it is stored.
func ValidateCron(expr string) error {
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("invalid cron expression: %q", expr)
	}
	return nil
}

// NextRun computes the next tick for a cron expression.
func NextRun(expr string) (*time.Time, error) {
	next, err := gronx.NextTick(expr, false)
	if err != nil {
		return nil, fmt.Errorf("next tick for %q: %w", expr, err)
	}
	return &next, nil
}

// UpdateConfig changes the poll interval and signals the run loop to reset
// its ticker.
func (s *Scheduler) UpdateConfig(pollInterval time.Duration) {
	s.pollInterval = pollInterval
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval == 0 {
		s.pollInterval = 30 * time.Second
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.reloadCh:
			ticker.Reset(s.pollInterval)
			slog.Info("scheduler config reloaded", "poll_interval", s.pollInterval)
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	due, err := s.store.GetDueSchedules(time.Now())
	if err != nil {
		slog.Error("failed to get due schedules", "error", err)
		return
	}

	for _, sc := range due {
		s.execute(ctx, sc)
	}
}

func (s *Scheduler) execute(ctx context.Context, sc store.Schedule) {
	slog.Info("starting scheduled project", "id", sc.ID, "name", sc.Name)

	lastStatus := "started"
	if _, err := s.engine.Start(ctx, sc.Name, sc.Description); err != nil {
		lastStatus = "error"
		slog.Error("scheduled project start failed", "id", sc.ID, "error", err)
	}

	nextRun, err := NextRun(sc.Cron)
	if err != nil {
		slog.Error("next run calculation failed", "id", sc.ID, "cron", sc.Cron, "error", err)
		nextRun = nil
	}

	if err := s.store.UpdateScheduleRun(sc.ID, lastStatus, nextRun); err != nil {
		slog.Error("failed to update schedule run", "id", sc.ID, "error", err)
	}
}
