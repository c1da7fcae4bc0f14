// ABOUTME: Periodic trigger for sync runs plus an on-demand path
// ABOUTME: Overlapping ticks are dropped by the runner, not queued

package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coa-mirror/internal/syncer"
)

// DefaultInterval matches the five minute schedule of the finance mirror.
const DefaultInterval = 5 * time.Minute

// Runner performs one sync pass.
type Runner interface {
	Run(ctx context.Context) (*syncer.Result, error)
}

// Scheduler calls a Runner on a fixed interval until closed.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	logger     *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a scheduler. A non-positive interval uses DefaultInterval.
func New(runner Runner, interval time.Duration, runOnStart bool, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logger.With("component", "scheduler"),
		done:       make(chan struct{}),
	}
}

// Start launches the background loop. It returns immediately; the loop exits
// when ctx is cancelled or Close is called. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.closed {
		return
	}
	s.started = true

	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	s.logger.Info("scheduler started", "interval", s.interval, "run_on_start", s.runOnStart)

	if s.runOnStart {
		s.tick(ctx, "startup")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx, "interval")
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "reason", ctx.Err())
			return
		case <-s.done:
			s.logger.Info("scheduler stopped", "reason", "closed")
			return
		}
	}
}

// tick runs one scheduled pass. Failures are already recorded in the sync
// log by the runner, so they are only logged here.
func (s *Scheduler) tick(ctx context.Context, trigger string) {
	select {
	case <-s.done:
		return
	default:
	}

	_, err := s.runner.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, syncer.ErrBusy):
		s.logger.Info("scheduled sync skipped, previous run still active", "trigger", trigger)
	case ctx.Err() != nil:
		s.logger.Debug("scheduled sync interrupted", "trigger", trigger, "error", err)
	default:
		s.logger.Warn("scheduled sync failed", "trigger", trigger, "error", err)
	}
}

// Trigger runs a pass immediately on the caller's goroutine.
func (s *Scheduler) Trigger(ctx context.Context) (*syncer.Result, error) {
	s.logger.Info("manual sync triggered")
	return s.runner.Run(ctx)
}

// Close stops the loop and waits for an in-flight tick to return. It is
// safe to call multiple times.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if !s.closed {
		close(s.done)
		s.closed = true
	}
	s.mu.Unlock()

	s.wg.Wait()
}
