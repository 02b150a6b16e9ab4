package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// SnapshotArchiver moves old risk snapshots to cold storage.
type SnapshotArchiver interface {
	ArchiveOld(ctx context.Context) (int, error)
}

// SchedulerConfig holds the loop intervals.
type SchedulerConfig struct {
	// FastInterval drives stop-loss and take-profit monitoring.
	FastInterval time.Duration
	// PortfolioInterval drives the slower portfolio risk checks.
	PortfolioInterval time.Duration
	// ArchiveInterval drives snapshot archival; zero disables the loop.
	ArchiveInterval time.Duration
	// TrackerSweepInterval garbage-collects the outstanding-order tracker.
	TrackerSweepInterval time.Duration
}

// DefaultSchedulerConfig returns the standard intervals.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		FastInterval:         30 * time.Second,
		PortfolioInterval:    5 * time.Minute,
		ArchiveInterval:      24 * time.Hour,
		TrackerSweepInterval: time.Minute,
	}
}

// Scheduler runs the engine's periodic loops until the context is cancelled.
type Scheduler struct {
	engine   *Engine
	archiver SnapshotArchiver // may be nil
	cfg      SchedulerConfig
	logger   *slog.Logger
}

// NewScheduler wires a Scheduler around the engine.
func NewScheduler(engine *Engine, archiver SnapshotArchiver, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = 30 * time.Second
	}
	if cfg.PortfolioInterval <= 0 {
		cfg.PortfolioInterval = 5 * time.Minute
	}
	if cfg.TrackerSweepInterval <= 0 {
		cfg.TrackerSweepInterval = time.Minute
	}
	return &Scheduler{
		engine:   engine,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Run starts all loops as concurrent goroutines using an errgroup. Each loop
// respects ctx cancellation; cancellation is a clean shutdown, not an error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		slog.Duration("fast_interval", s.cfg.FastInterval),
		slog.Duration("portfolio_interval", s.cfg.PortfolioInterval),
		slog.Duration("archive_interval", s.cfg.ArchiveInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.runFastLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("fast loop: %w", err)
	})

	g.Go(func() error {
		err := s.runPortfolioLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("portfolio loop: %w", err)
	})

	if s.archiver != nil && s.cfg.ArchiveInterval > 0 {
		g.Go(func() error {
			err := s.runArchiveLoop(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archive loop: %w", err)
		})
	}

	g.Go(func() error {
		s.runTrackerSweep(ctx)
		return nil
	})

	err := g.Wait()
	if err != nil {
		s.logger.Error("scheduler stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("scheduler stopped cleanly")
	return nil
}

// runFastLoop evaluates all active portfolios on the fast interval. This is
// the path stop-loss protection depends on, so it runs immediately on start.
func (s *Scheduler) runFastLoop(ctx context.Context) error {
	if _, err := s.engine.EvaluateCycle(ctx, nil); err != nil {
		s.logger.Error("evaluation cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.cfg.FastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.engine.EvaluateCycle(ctx, nil); err != nil {
				s.logger.Error("evaluation cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runPortfolioLoop snapshots portfolio risk on the slower interval.
func (s *Scheduler) runPortfolioLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PortfolioInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.engine.AssessActive(ctx); err != nil {
				s.logger.Error("portfolio assessment sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Scheduler) runArchiveLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ArchiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.archiver.ArchiveOld(ctx)
			if err != nil {
				s.logger.Error("snapshot archival failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.Info("snapshots archived", slog.Int("count", n))
			}
		}
	}
}

func (s *Scheduler) runTrackerSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TrackerSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.engine.coord.Tracker().Cleanup()
		}
	}
}
