package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrBusy is returned when a batch is already in progress.
var ErrBusy = errors.New("a sync is already running")

// Scheduler runs the batch syncs on a cron schedule and on demand. At most
// one batch runs at a time; overlapping ticks are skipped.
type Scheduler struct {
	runner *BatchRunner
	runs   RunLog
	spec   string
	cron   *cron.Cron
	busy   atomic.Bool
	now    func() time.Time
	last   atomic.Pointer[Summary]

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler. runs may be nil.
func NewScheduler(runner *BatchRunner, spec string, runs RunLog) *Scheduler {
	return &Scheduler{
		runner: runner,
		runs:   runs,
		spec:   spec,
		cron:   cron.New(),
		now:    time.Now,
	}
}

// ValidSource reports whether a batch source name is known.
func ValidSource(source string) bool {
	switch source {
	case SourceAll, SourceSquarespace, SourceStripe, SourceNonRenewed:
		return true
	}
	return false
}

// Start registers the schedule and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	_, err := s.cron.AddFunc(s.spec, func() {
		slog.Info("Starting scheduled sync", "schedule", s.spec)
		s.tick()
	})
	if err != nil {
		return fmt.Errorf("adding schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.running = true
	slog.Info("Sync scheduler started", "schedule", s.spec)
	return nil
}

// Stop stops the cron loop and waits for a running job. The job may still
// publish its summary while Stop waits.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	slog.Info("Stopping sync scheduler")
	ctx := s.cron.Stop()
	s.mu.Unlock()

	<-ctx.Done()
	slog.Info("Sync scheduler stopped")
}

func (s *Scheduler) tick() {
	if s.runs != nil {
		cutoff := s.now().AddDate(0, 0, -RunLogRetentionDays)
		if n, err := s.runs.Prune(cutoff); err != nil {
			slog.Warn("Failed to prune old sync runs", "error", err)
		} else if n > 0 {
			slog.Info("Pruned old sync runs", "deleted", n)
		}
	}

	if _, err := s.RunNow(context.Background(), SourceAll, s.now().Year()); err != nil {
		slog.Warn("Scheduled sync skipped", "error", err)
	}
}

// RunNow runs a batch synchronously, or returns ErrBusy.
func (s *Scheduler) RunNow(ctx context.Context, source string, year int) (*Summary, error) {
	if !ValidSource(source) {
		return nil, fmt.Errorf("unknown source: %s", source)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)
	return s.execute(ctx, source, year)
}

// Trigger starts a batch in the background, or returns ErrBusy.
func (s *Scheduler) Trigger(source string, year int) error {
	if !ValidSource(source) {
		return fmt.Errorf("unknown source: %s", source)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	slog.Info("Manual sync triggered", "source", source, "year", year)
	go func() {
		defer s.busy.Store(false)
		if _, err := s.execute(context.Background(), source, year); err != nil {
			slog.Error("Manual sync failed", "source", source, "error", err)
		}
	}()
	return nil
}

func (s *Scheduler) execute(ctx context.Context, source string, year int) (*Summary, error) {
	summary, err := s.runner.RunSource(ctx, source, year)
	if err != nil {
		return nil, err
	}

	s.last.Store(summary)

	if s.runs != nil {
		if err := s.runs.Record(summary); err != nil {
			slog.Warn("Failed to record sync run", "run_id", summary.RunID, "error", err)
		}
	}
	return summary, nil
}

// IsRunning reports whether a batch is in progress.
func (s *Scheduler) IsRunning() bool {
	return s.busy.Load()
}

// LastSummary returns the most recent finished batch, or nil.
func (s *Scheduler) LastSummary() *Summary {
	return s.last.Load()
}
