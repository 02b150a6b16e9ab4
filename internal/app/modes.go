package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/corvalis/riskbot/internal/engine"
	"github.com/corvalis/riskbot/internal/executor"
	"github.com/corvalis/riskbot/internal/feed"
	"github.com/corvalis/riskbot/internal/monitor"
	"github.com/corvalis/riskbot/internal/rebalance"
	"github.com/corvalis/riskbot/internal/risk"
)

// buildEngine assembles the evaluation engine from wired dependencies. The
// same engine backs every mode; only the surrounding loops differ.
func (a *App) buildEngine(deps *Dependencies) *engine.Engine {
	priceFeed := feed.NewCachedPriceFeed(deps.PriceCache, a.cfg.Feed.MaxAge.Duration)

	coord := executor.NewCoordinator(
		deps.Gateway,
		deps.OrderStore,
		deps.PositionStore,
		deps.TradeStore,
		deps.Notifier,
		deps.Metrics,
		executor.Config{
			Workers:        a.cfg.Executor.Workers,
			MaxAttempts:    a.cfg.Executor.MaxAttempts,
			BaseDelay:      a.cfg.Executor.BaseDelay.Duration,
			GatewayTimeout: a.cfg.Executor.GatewayTimeout.Duration,
			TrackerTTL:     a.cfg.Executor.TrackerTTL.Duration,
		},
		a.logger,
	)

	return engine.NewEngine(
		deps.PortfolioStore,
		deps.PositionStore,
		deps.SnapshotStore,
		priceFeed,
		deps.LockManager,
		coord,
		deps.Notifier,
		deps.Metrics,
		engine.Config{
			Monitor: monitor.Config{
				Trailing: risk.TrailingConfig{
					Tier1GainPct: a.cfg.Monitor.Tier1GainPct,
					Tier1LockPct: a.cfg.Monitor.Tier1LockPct,
					Tier2GainPct: a.cfg.Monitor.Tier2GainPct,
					Tier2LockPct: a.cfg.Monitor.Tier2LockPct,
				},
				ReviewLossPct:       a.cfg.Monitor.ReviewLossPct,
				PartialExitFraction: a.cfg.Monitor.PartialExitFraction,
			},
			Limits: risk.Limits{
				MaxPortfolioRisk:       a.cfg.Risk.MaxPortfolioRisk,
				MaxSectorConcentration: a.cfg.Risk.MaxSectorConcentration,
				SinglePositionWarnPct:  a.cfg.Risk.SinglePositionWarnPct,
			},
			VaR: risk.VaRConfig{
				Trials:     a.cfg.Risk.VaRTrials,
				Confidence: a.cfg.Risk.VaRConfidence,
				DefaultVol: a.cfg.Risk.DefaultVolatility,
				AssetVol:   a.cfg.Risk.AssetVolatility,
			},
			Rebalance: rebalance.Config{
				Threshold:   a.cfg.Rebalance.Threshold,
				MinNotional: a.cfg.Rebalance.MinNotional,
			},
			Sectors:     a.cfg.Engine.Sectors,
			LockTTL:     a.cfg.Engine.LockTTL.Duration,
			Parallelism: a.cfg.Engine.Parallelism,
		},
		a.logger,
	)
}

// RunMode starts the scheduler loops, the websocket price feed, and the
// metrics server, then blocks until the context is cancelled.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting run mode")

	g, ctx := errgroup.WithContext(ctx)

	eng := a.buildEngine(deps)
	sched := engine.NewScheduler(eng, deps.Archiver, engine.SchedulerConfig{
		FastInterval:         a.cfg.Engine.FastInterval.Duration,
		PortfolioInterval:    a.cfg.Engine.PortfolioInterval.Duration,
		ArchiveInterval:      a.cfg.Engine.ArchiveInterval.Duration,
		TrackerSweepInterval: a.cfg.Engine.TrackerSweepInterval.Duration,
	}, a.logger)

	g.Go(func() error {
		return sched.Run(ctx)
	})

	// Websocket ticker feed keeps the price cache warm. With feed.internal the
	// cache is populated by an external writer instead.
	if !a.cfg.Feed.Internal {
		if len(a.cfg.Feed.Symbols) == 0 {
			a.logger.WarnContext(ctx, "run mode: feed.symbols is empty; price cache will go stale")
		} else {
			tickerFeed := feed.NewTickerFeed(a.cfg.Feed.WsURL, a.cfg.Feed.Symbols, deps.PriceCache, a.logger)
			g.Go(func() error {
				defer tickerFeed.Close()
				return tickerFeed.Run(ctx)
			})
		}
	}

	if a.cfg.Metrics.Enabled {
		a.startMetricsServer(ctx, g, deps)
	}

	return g.Wait()
}

// OnceMode runs a single evaluation cycle across all active portfolios and
// exits. Useful for cron-driven deployments and smoke tests.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")

	eng := a.buildEngine(deps)
	report, err := eng.EvaluateCycle(ctx, nil)
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}

	a.logger.InfoContext(ctx, "evaluation cycle complete",
		slog.Duration("duration", report.Duration),
		slog.Int("portfolios", report.PortfoliosEvaluated),
		slog.Int("positions", report.PositionsEvaluated),
		slog.Int("intents", report.IntentsEmitted),
		slog.Int("orders", report.OrdersSubmitted),
		slog.Int("skipped", len(report.Skipped)),
	)
	for _, w := range report.Warnings {
		a.logger.WarnContext(ctx, "cycle warning", slog.String("warning", w))
	}
	return nil
}

// AssessMode computes and persists a risk snapshot for every active portfolio,
// then exits. No orders are placed.
func (a *App) AssessMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting assess mode")

	eng := a.buildEngine(deps)
	if err := eng.AssessActive(ctx); err != nil {
		return fmt.Errorf("assess mode: %w", err)
	}

	a.logger.InfoContext(ctx, "portfolio assessment complete")
	return nil
}

// ImportKeysMode encrypts the venue credentials from the configuration and
// stores them for the configured user, then exits. Subsequent runs pick them
// up and sign gateway requests with them.
func (a *App) ImportKeysMode(ctx context.Context, deps *Dependencies) error {
	if deps.Vault == nil {
		return fmt.Errorf("import-keys mode: keys.master_password is not set")
	}

	err := deps.Vault.Store(ctx,
		a.cfg.Keys.UserID,
		a.cfg.Exchange.Venue,
		a.cfg.Keys.APIKey,
		a.cfg.Keys.APISecret,
	)
	if err != nil {
		return fmt.Errorf("import-keys mode: %w", err)
	}

	a.logger.InfoContext(ctx, "credentials imported",
		slog.String("user_id", a.cfg.Keys.UserID),
		slog.String("venue", a.cfg.Exchange.Venue),
	)
	return nil
}

// startMetricsServer adds a Prometheus metrics endpoint to the given errgroup.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startMetricsServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "metrics server listening", slog.String("addr", a.cfg.Metrics.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "metrics server shutting down")
		return srv.Shutdown(shutCtx)
	})
}
