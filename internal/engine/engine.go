// Package engine orchestrates evaluation cycles: it snapshots prices, runs
// the position monitor, aggregates portfolio risk, plans rebalancing, and
// hands the resulting intents to the execution coordinator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/corvalis/riskbot/internal/domain"
	"github.com/corvalis/riskbot/internal/executor"
	"github.com/corvalis/riskbot/internal/monitor"
	"github.com/corvalis/riskbot/internal/monitoring"
	"github.com/corvalis/riskbot/internal/notify"
	"github.com/corvalis/riskbot/internal/rebalance"
	"github.com/corvalis/riskbot/internal/risk"
)

// snapshotHistoryLimit bounds how much history feeds the drawdown metric.
const snapshotHistoryLimit = 100

// Config tunes one evaluation cycle.
type Config struct {
	Monitor     monitor.Config
	Limits      risk.Limits
	VaR         risk.VaRConfig
	Rebalance   rebalance.Config
	Sectors     map[string]string // symbol -> sector for concentration checks
	LockTTL     time.Duration
	Parallelism int // concurrent portfolio evaluations
}

// DefaultConfig returns the standard engine settings.
func DefaultConfig() Config {
	return Config{
		Monitor:     monitor.DefaultConfig(),
		Limits:      risk.DefaultLimits(),
		VaR:         risk.DefaultVaRConfig(),
		Rebalance:   rebalance.DefaultConfig(),
		LockTTL:     30 * time.Second,
		Parallelism: 4,
	}
}

// Engine evaluates portfolios. Lifecycle transitions (entries, exits, partial
// closes) flow through the execution coordinator only. The one mutation the
// engine performs itself, while holding the portfolio lock, is persisting the
// latest mark price and any tightened trailing stop on open positions.
type Engine struct {
	portfolios domain.PortfolioStore
	positions  domain.PositionStore
	snapshots  domain.SnapshotStore
	feed       domain.PriceFeed
	locks      domain.LockManager
	coord      *executor.Coordinator
	alerter    executor.Alerter
	metrics    *monitoring.Metrics
	cfg        Config
	logger     *slog.Logger
	newRand    func() *rand.Rand
}

// NewEngine wires an Engine. alerter and metrics may be nil.
func NewEngine(
	portfolios domain.PortfolioStore,
	positions domain.PositionStore,
	snapshots domain.SnapshotStore,
	feed domain.PriceFeed,
	locks domain.LockManager,
	coord *executor.Coordinator,
	alerter executor.Alerter,
	metrics *monitoring.Metrics,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Engine{
		portfolios: portfolios,
		positions:  positions,
		snapshots:  snapshots,
		feed:       feed,
		locks:      locks,
		coord:      coord,
		alerter:    alerter,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "engine")),
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// SetRandSource overrides the Monte Carlo source factory, for reproducible
// assessments.
func (e *Engine) SetRandSource(f func() *rand.Rand) {
	e.newRand = f
}

type portfolioOutcome struct {
	evaluated bool
	positions int
	intents   int
	orders    int
	skipped   []domain.SkippedPosition
	warnings  []string
}

// EvaluateCycle runs one full evaluation over the given portfolios, or over
// all active portfolios when portfolioIDs is empty. Portfolios are evaluated
// in parallel; a failure in one portfolio is recorded and never aborts the
// others.
func (e *Engine) EvaluateCycle(ctx context.Context, portfolioIDs []string) (domain.CycleReport, error) {
	start := time.Now().UTC()
	report := domain.CycleReport{StartedAt: start}

	pfs, err := e.loadPortfolios(ctx, portfolioIDs)
	if err != nil {
		return report, fmt.Errorf("engine: load portfolios: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)

	for _, pf := range pfs {
		pf := pf
		g.Go(func() error {
			out := e.evaluatePortfolio(gctx, pf)
			mu.Lock()
			defer mu.Unlock()
			if out.evaluated {
				report.PortfoliosEvaluated++
			}
			report.PositionsEvaluated += out.positions
			report.IntentsEmitted += out.intents
			report.OrdersSubmitted += out.orders
			report.Skipped = append(report.Skipped, out.skipped...)
			report.Warnings = append(report.Warnings, out.warnings...)
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	e.metrics.CycleCompleted(report.Duration)
	e.logger.InfoContext(ctx, "cycle completed",
		slog.Int("portfolios", report.PortfoliosEvaluated),
		slog.Int("positions", report.PositionsEvaluated),
		slog.Int("intents", report.IntentsEmitted),
		slog.Int("orders", report.OrdersSubmitted),
		slog.Int("skipped", len(report.Skipped)),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func (e *Engine) loadPortfolios(ctx context.Context, ids []string) ([]domain.Portfolio, error) {
	if len(ids) == 0 {
		return e.portfolios.ListActive(ctx)
	}
	out := make([]domain.Portfolio, 0, len(ids))
	for _, id := range ids {
		pf, err := e.portfolios.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("portfolio %s: %w", id, err)
		}
		out = append(out, pf)
	}
	return out, nil
}

// evaluatePortfolio runs the whole per-portfolio sequence under the
// portfolio's distributed lock: reconcile, price snapshot, monitor, value
// refresh, risk assessment, rebalance planning, execution.
func (e *Engine) evaluatePortfolio(ctx context.Context, pf domain.Portfolio) portfolioOutcome {
	var out portfolioOutcome
	log := e.logger.With(slog.String("portfolio_id", pf.ID))

	release, err := e.locks.Acquire(ctx, "portfolio:"+pf.ID, e.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			log.DebugContext(ctx, "portfolio locked by another cycle, skipping")
			out.warnings = append(out.warnings, fmt.Sprintf("portfolio %s busy, skipped", pf.ID))
			return out
		}
		log.ErrorContext(ctx, "lock acquire failed", slog.String("error", err.Error()))
		out.warnings = append(out.warnings, fmt.Sprintf("portfolio %s: lock: %v", pf.ID, err))
		return out
	}
	defer release()
	out.evaluated = true

	if err := e.coord.Reconcile(ctx, pf.ID); err != nil {
		log.WarnContext(ctx, "order reconciliation failed", slog.String("error", err.Error()))
	}

	open, err := e.positions.ListOpenByPortfolio(ctx, pf.ID)
	if err != nil {
		log.ErrorContext(ctx, "list positions failed", slog.String("error", err.Error()))
		out.warnings = append(out.warnings, fmt.Sprintf("portfolio %s: positions: %v", pf.ID, err))
		return out
	}

	now := time.Now().UTC()
	pricesBySymbol := make(map[string]float64, len(open))
	var intents []domain.Intent

	// One immutable price snapshot per position per cycle. A stale or missing
	// price skips that position only.
	for i := range open {
		pos := open[i]
		price, _, err := e.feed.GetCurrentPrice(ctx, pos.Symbol, pos.Venue)
		if err != nil {
			out.skipped = append(out.skipped, domain.SkippedPosition{
				PositionID: pos.ID,
				Symbol:     pos.Symbol,
				Reason:     err.Error(),
			})
			e.metrics.PositionSkipped()
			continue
		}
		pricesBySymbol[pos.Symbol] = price

		ev, err := monitor.Evaluate(pos, price, now, e.cfg.Monitor)
		if err != nil {
			out.skipped = append(out.skipped, domain.SkippedPosition{
				PositionID: pos.ID,
				Symbol:     pos.Symbol,
				Reason:     err.Error(),
			})
			continue
		}
		out.positions++
		intents = append(intents, ev.Intents...)
		for _, in := range ev.Intents {
			e.metrics.IntentEmitted(string(in.Kind))
		}

		pos.CurrentPrice = price
		if ev.NewStop != nil {
			pos.StopLoss = ev.NewStop
			log.InfoContext(ctx, "trailing stop tightened",
				slog.String("position_id", pos.ID),
				slog.Float64("stop", *ev.NewStop))
		}
		open[i] = pos
		if err := e.positions.Update(ctx, pos); err != nil {
			log.WarnContext(ctx, "position update failed",
				slog.String("position_id", pos.ID), slog.String("error", err.Error()))
		}
	}

	pf = e.refreshValue(ctx, pf, open, log)

	assessment, _, err := e.snapshotRisk(ctx, pf, open)
	if err != nil {
		log.WarnContext(ctx, "risk snapshot failed", slog.String("error", err.Error()))
	} else {
		out.warnings = append(out.warnings, assessment.Warnings...)
		if len(assessment.Warnings) > 0 {
			e.alert(ctx, "Portfolio risk warning",
				fmt.Sprintf("portfolio %s: %s", pf.ID, joinWarnings(assessment.Warnings)))
		}
		if in, ok := reduceRiskIntent(pf, assessment, open, now); ok {
			intents = append(intents, in)
			e.metrics.IntentEmitted(string(in.Kind))
		}
	}

	if pf.AutoRebalance {
		intents = append(intents, e.planRebalance(pf, open, pricesBySymbol, now, &out)...)
	}

	rep := e.coord.Execute(ctx, intents)
	out.intents = len(intents)
	out.orders = rep.Submitted
	return out
}

// refreshValue recomputes the portfolio's total value from cash plus the
// marked-to-market open positions and persists it.
func (e *Engine) refreshValue(ctx context.Context, pf domain.Portfolio, open []domain.Position, log *slog.Logger) domain.Portfolio {
	total := pf.CashBalance
	for _, pos := range open {
		total += pos.Value()
	}
	if err := e.portfolios.UpdateValue(ctx, pf.ID, total, pf.CashBalance); err != nil {
		log.WarnContext(ctx, "portfolio value refresh failed", slog.String("error", err.Error()))
		return pf
	}
	pf.TotalValue = total
	return pf
}

// snapshotRisk assesses the portfolio, runs the Monte Carlo tail estimate,
// folds in drawdown from snapshot history, and appends an immutable snapshot.
func (e *Engine) snapshotRisk(ctx context.Context, pf domain.Portfolio, open []domain.Position) (domain.RiskAssessment, domain.RiskSnapshot, error) {
	assessment := risk.Assess(pf, open, e.cfg.Sectors, e.cfg.Limits)
	tail := risk.MonteCarloVaR(open, pf.TotalValue, e.cfg.VaR, e.newRand())
	assessment.VaR95Pct = tail.VaR95Pct
	assessment.ExpectedShortfall = tail.ExpectedShortfall

	history, err := e.snapshots.ListRecent(ctx, pf.ID, snapshotHistoryLimit)
	if err != nil {
		return assessment, domain.RiskSnapshot{}, fmt.Errorf("engine: snapshot history: %w", err)
	}
	// ListRecent is newest-first; drawdown wants chronological order.
	values := make([]float64, 0, len(history)+1)
	for i := len(history) - 1; i >= 0; i-- {
		values = append(values, history[i].TotalValue)
	}
	values = append(values, pf.TotalValue)
	assessment.MaxDrawdown = risk.MaxDrawdown(values)

	snap := domain.RiskSnapshot{
		ID:                  uuid.New().String(),
		PortfolioID:         pf.ID,
		TakenAt:             time.Now().UTC(),
		TotalValue:          pf.TotalValue,
		TotalRiskPct:        assessment.TotalRiskPct,
		RiskLevel:           assessment.RiskLevel,
		SectorConcentration: assessment.SectorConcentration,
		VaR95Pct:            assessment.VaR95Pct,
		ExpectedShortfall:   assessment.ExpectedShortfall,
		MaxDrawdown:         assessment.MaxDrawdown,
	}
	if err := e.snapshots.Append(ctx, snap); err != nil {
		return assessment, domain.RiskSnapshot{}, fmt.Errorf("engine: append snapshot: %w", err)
	}
	e.metrics.SetPortfolioRisk(pf.ID, assessment.TotalRiskPct)
	return assessment, snap, nil
}

// reduceRiskIntent proposes halving the riskiest position when total
// portfolio risk is classified high.
func reduceRiskIntent(pf domain.Portfolio, assessment domain.RiskAssessment, open []domain.Position, now time.Time) (domain.Intent, bool) {
	if assessment.RiskLevel != domain.RiskLevelHigh || len(assessment.PerPositionRisk) == 0 {
		return domain.Intent{}, false
	}

	worst := assessment.PerPositionRisk[0]
	for _, pr := range assessment.PerPositionRisk[1:] {
		if pr.RiskPct > worst.RiskPct {
			worst = pr
		}
	}

	for _, pos := range open {
		if pos.ID != worst.PositionID {
			continue
		}
		side := domain.OrderSideSell
		if pos.Side == domain.SideShort {
			side = domain.OrderSideBuy
		}
		return domain.Intent{
			Kind:         domain.IntentReduceRisk,
			PortfolioID:  pf.ID,
			PositionID:   pos.ID,
			Symbol:       pos.Symbol,
			Venue:        pos.Venue,
			Side:         side,
			Quantity:     pos.Quantity / 2,
			TriggerPrice: pos.CurrentPrice,
			Reason:       fmt.Sprintf("portfolio risk %.1f%% is high, reducing largest contributor", assessment.TotalRiskPct),
			CreatedAt:    now,
		}, true
	}
	return domain.Intent{}, false
}

// planRebalance turns planner proposals into rebalance intents. Sells are
// attached to the open position in the symbol so fills reduce it.
func (e *Engine) planRebalance(pf domain.Portfolio, open []domain.Position, prices map[string]float64, now time.Time, out *portfolioOutcome) []domain.Intent {
	cfg := e.cfg.Rebalance
	if pf.RebalanceThreshold > 0 {
		cfg.Threshold = pf.RebalanceThreshold
	}

	trades, skipped := rebalance.Plan(pf, open, prices, cfg)
	for _, sym := range skipped {
		out.warnings = append(out.warnings, fmt.Sprintf("rebalance: no price for %s", sym))
	}

	positionBySymbol := map[string]string{}
	venueBySymbol := map[string]string{}
	for _, pos := range open {
		positionBySymbol[pos.Symbol] = pos.ID
		venueBySymbol[pos.Symbol] = pos.Venue
	}

	intents := make([]domain.Intent, 0, len(trades))
	for _, tr := range trades {
		venue := tr.Venue
		if venue == "" {
			venue = venueBySymbol[tr.Symbol]
		}
		intent := domain.Intent{
			Kind:         domain.IntentRebalance,
			PortfolioID:  pf.ID,
			Symbol:       tr.Symbol,
			Venue:        venue,
			Side:         tr.Side,
			Quantity:     tr.Quantity,
			TriggerPrice: tr.Price,
			Reason: fmt.Sprintf("rebalance %.1f%% -> %.1f%%",
				tr.CurrentWeight*100, tr.TargetWeight*100),
			CreatedAt: now,
		}
		if tr.Side == domain.OrderSideSell {
			intent.PositionID = positionBySymbol[tr.Symbol]
		}
		intents = append(intents, intent)
		e.metrics.IntentEmitted(string(intent.Kind))
	}
	return intents
}

// AssessPortfolio computes and persists a risk snapshot for one portfolio
// without executing anything.
func (e *Engine) AssessPortfolio(ctx context.Context, portfolioID string) (domain.RiskSnapshot, error) {
	pf, err := e.portfolios.GetByID(ctx, portfolioID)
	if err != nil {
		return domain.RiskSnapshot{}, fmt.Errorf("engine: portfolio %s: %w", portfolioID, err)
	}
	open, err := e.positions.ListOpenByPortfolio(ctx, portfolioID)
	if err != nil {
		return domain.RiskSnapshot{}, fmt.Errorf("engine: positions for %s: %w", portfolioID, err)
	}

	// Best-effort price refresh; a stale quote falls back to the last mark.
	for i := range open {
		price, _, err := e.feed.GetCurrentPrice(ctx, open[i].Symbol, open[i].Venue)
		if err == nil {
			open[i].CurrentPrice = price
		}
	}

	total := pf.CashBalance
	for _, pos := range open {
		total += pos.Value()
	}
	pf.TotalValue = total

	_, snap, err := e.snapshotRisk(ctx, pf, open)
	if err != nil {
		return domain.RiskSnapshot{}, err
	}
	return snap, nil
}

// AssessActive snapshots risk for every active portfolio. Used by the slower
// portfolio-check loop.
func (e *Engine) AssessActive(ctx context.Context) error {
	pfs, err := e.portfolios.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("engine: list active: %w", err)
	}
	for _, pf := range pfs {
		if _, err := e.AssessPortfolio(ctx, pf.ID); err != nil {
			e.logger.WarnContext(ctx, "portfolio assessment failed",
				slog.String("portfolio_id", pf.ID), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (e *Engine) alert(ctx context.Context, title, message string) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Notify(ctx, notify.EventRiskWarning, title, message); err != nil {
		e.logger.WarnContext(ctx, "alert delivery failed", slog.String("error", err.Error()))
	}
}

func joinWarnings(warnings []string) string {
	if len(warnings) == 1 {
		return warnings[0]
	}
	out := warnings[0]
	for _, w := range warnings[1:] {
		out += "; " + w
	}
	return out
}
