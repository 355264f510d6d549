// Package scheduler runs the retention sweep on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep daily at 03:00.
const DefaultSchedule = "0 3 * * *"

// Archiver archives completed cycles last updated before cutoff.
// Satisfied by engine.Service (avoids import cycle).
type Archiver interface {
	ArchiveCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Config configures a Scheduler.
type Config struct {
	Schedule  string        // standard 5-field cron expression
	Retention time.Duration // how long completed cycles stay unarchived
	Logger    *slog.Logger
}

// Scheduler archives stale completed cycles at each cron tick.
type Scheduler struct {
	archiver  Archiver
	schedule  cron.Schedule
	spec      string
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	runMu sync.Mutex // one sweep at a time
}

// NewScheduler creates a Scheduler. The schedule is parsed up front.
func NewScheduler(a Archiver, cfg Config) (*Scheduler, error) {
	if a == nil {
		return nil, fmt.Errorf("scheduler: archiver is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("scheduler: retention must be positive, got %s", cfg.Retention)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	schedule, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		archiver:  a,
		schedule:  schedule,
		spec:      cfg.Schedule,
		retention: cfg.Retention,
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// ParseSchedule parses a standard 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// NextRun returns the first sweep time after from.
func (s *Scheduler) NextRun(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// Start launches the background loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("retention scheduler started",
		slog.String("schedule", s.spec),
		slog.Duration("retention", s.retention),
	)
	return nil
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		next := s.NextRun(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("retention sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs a single sweep and returns the number of archived cycles.
// A sweep already in progress makes this call a no-op.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if !s.runMu.TryLock() {
		s.logger.Debug("retention sweep already running")
		return 0, nil
	}
	defer s.runMu.Unlock()

	cutoff := s.now().Add(-s.retention)
	n, err := s.archiver.ArchiveCompletedBefore(ctx, cutoff)
	s.logger.Info("retention sweep finished",
		slog.Time("cutoff", cutoff),
		slog.Int("archived", n),
	)
	return n, err
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("retention scheduler stopped")
	return nil
}
