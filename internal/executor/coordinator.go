// Package executor turns intents into exchange orders. It owns all position
// mutation: orders are idempotent per intent key, retried with bounded
// backoff, and reconciled against actual fills.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/corvalis/riskbot/internal/domain"
	"github.com/corvalis/riskbot/internal/monitoring"
	"github.com/corvalis/riskbot/internal/notify"
)

// Alerter delivers operator notifications. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config tunes the coordinator.
type Config struct {
	Workers        int
	MaxAttempts    int
	BaseDelay      time.Duration
	GatewayTimeout time.Duration
	TrackerTTL     time.Duration
}

// DefaultConfig returns the standard execution settings.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		GatewayTimeout: 10 * time.Second,
		TrackerTTL:     10 * time.Minute,
	}
}

// Report summarises one Execute batch.
type Report struct {
	Submitted  int
	Suppressed int
	Failed     int
	Advisories int
}

// Coordinator is the execution coordinator. It consumes intents produced by
// the monitor, risk aggregator, and rebalance planner, and is the only
// component that mutates positions.
type Coordinator struct {
	gateway   domain.ExchangeGateway
	orders    domain.OrderStore
	positions domain.PositionStore
	trades    domain.TradeStore
	alerter   Alerter
	metrics   *monitoring.Metrics
	tracker   *Tracker
	cfg       Config
	logger    *slog.Logger
}

// NewCoordinator wires a Coordinator. alerter and metrics may be nil.
func NewCoordinator(
	gateway domain.ExchangeGateway,
	orders domain.OrderStore,
	positions domain.PositionStore,
	trades domain.TradeStore,
	alerter Alerter,
	metrics *monitoring.Metrics,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Coordinator{
		gateway:   gateway,
		orders:    orders,
		positions: positions,
		trades:    trades,
		alerter:   alerter,
		metrics:   metrics,
		tracker:   NewTracker(cfg.TrackerTTL),
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "executor")),
	}
}

// Tracker exposes the outstanding-order tracker, mainly for the cleanup loop.
func (c *Coordinator) Tracker() *Tracker { return c.tracker }

// clientID derives the idempotency key handed to the gateway from the intent
// key, so a resubmission of the same intent maps to the same exchange order.
func clientID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("riskbot:"+key)).String()
}

// Execute processes a batch of intents through a worker pool and returns a
// summary. Individual intent failures never abort the batch.
func (c *Coordinator) Execute(ctx context.Context, intents []domain.Intent) Report {
	var submitted, suppressed, failed, advisories atomic.Int64

	jobs := make(chan domain.Intent)
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for intent := range jobs {
				switch c.process(ctx, intent) {
				case outcomeSubmitted:
					submitted.Add(1)
				case outcomeSuppressed:
					suppressed.Add(1)
				case outcomeFailed:
					failed.Add(1)
				case outcomeAdvisory:
					advisories.Add(1)
				}
			}
		}()
	}

feed:
	for _, intent := range intents {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- intent:
		}
	}
	close(jobs)
	wg.Wait()

	return Report{
		Submitted:  int(submitted.Load()),
		Suppressed: int(suppressed.Load()),
		Failed:     int(failed.Load()),
		Advisories: int(advisories.Load()),
	}
}

type outcome int

const (
	outcomeSubmitted outcome = iota
	outcomeSuppressed
	outcomeFailed
	outcomeAdvisory
)

func (c *Coordinator) process(ctx context.Context, intent domain.Intent) outcome {
	log := c.logger.With(
		slog.String("kind", string(intent.Kind)),
		slog.String("portfolio_id", intent.PortfolioID),
		slog.String("position_id", intent.PositionID),
		slog.String("symbol", intent.Symbol),
	)

	if intent.Kind.Advisory() {
		c.alert(ctx, notify.EventPositionReview, "Position needs review",
			fmt.Sprintf("%s %s: %s", intent.Symbol, intent.PositionID, intent.Reason))
		log.InfoContext(ctx, "advisory intent raised", slog.String("reason", intent.Reason))
		return outcomeAdvisory
	}

	key := intent.DedupKey()
	cid := clientID(key)

	if !c.tracker.Claim(key) {
		log.DebugContext(ctx, "intent suppressed, order outstanding", slog.String("key", key))
		c.metrics.IntentSuppressed()
		return outcomeSuppressed
	}

	// After a restart the tracker is empty but the order store is not: an
	// unresolved order for this client ID means the intent already executed.
	if existing, err := c.orders.GetByClientID(ctx, cid); err == nil {
		if existing.Status.Resolved() {
			c.tracker.Resolve(key)
		} else {
			c.tracker.MarkSubmitted(OutstandingOrder{
				Key:        key,
				OrderID:    existing.ID,
				ExchangeID: existing.ExchangeID,
				ClientID:   cid,
				PositionID: existing.PositionID,
				Symbol:     existing.Symbol,
				Side:       existing.Side,
			})
		}
		c.metrics.IntentSuppressed()
		return outcomeSuppressed
	} else if !errors.Is(err, domain.ErrNotFound) {
		c.tracker.Resolve(key)
		log.ErrorContext(ctx, "order lookup failed", slog.String("error", err.Error()))
		return outcomeFailed
	}

	// A reversing intent on the same position cancels the outstanding order
	// first; if the cancel loses the race to a fill, reconcile the fill.
	if rev, ok := c.tracker.Reversal(intent.PositionID, intent.Side); ok {
		if err := c.cancelOutstanding(ctx, rev); err != nil {
			c.tracker.Resolve(key)
			log.WarnContext(ctx, "reversal cancel failed, deferring intent",
				slog.String("error", err.Error()))
			return outcomeFailed
		}
	}

	result, err := c.submitWithRetry(ctx, intent, cid, log)
	if err != nil {
		// The claim stays in place until the TTL sweep so a flagged position
		// is not retried and re-alerted every cycle.
		c.metrics.OrderFailed()
		if intent.PositionID != "" {
			if ferr := c.positions.FlagForReview(ctx, intent.PositionID); ferr != nil {
				log.ErrorContext(ctx, "flag for review failed", slog.String("error", ferr.Error()))
			}
		}
		c.alert(ctx, notify.EventExecutionFailed, "Order execution failed",
			fmt.Sprintf("%s %s %s qty %.8f: %v", intent.Kind, intent.Side, intent.Symbol, intent.Quantity, err))
		log.ErrorContext(ctx, "execution failed", slog.String("error", err.Error()))
		return outcomeFailed
	}

	order := domain.Order{
		ID:          uuid.New().String(),
		ClientID:    cid,
		ExchangeID:  result.OrderID,
		PortfolioID: intent.PortfolioID,
		PositionID:  intent.PositionID,
		Symbol:      intent.Symbol,
		Venue:       intent.Venue,
		Side:        intent.Side,
		Type:        domain.OrderTypeMarket,
		Quantity:    intent.Quantity,
		Status:      result.Status,
		FilledQty:   result.FilledQty,
		AvgPrice:    result.AvgPrice,
		Reason:      intent.Reason,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := c.orders.Create(ctx, order); err != nil {
		log.ErrorContext(ctx, "order persist failed",
			slog.String("order_id", order.ID), slog.String("error", err.Error()))
	}
	c.tracker.MarkSubmitted(OutstandingOrder{
		Key:        key,
		OrderID:    order.ID,
		ExchangeID: order.ExchangeID,
		ClientID:   cid,
		PositionID: intent.PositionID,
		Symbol:     intent.Symbol,
		Side:       intent.Side,
	})
	c.metrics.OrderSubmitted()
	log.InfoContext(ctx, "order submitted",
		slog.String("order_id", order.ID),
		slog.String("status", string(result.Status)))

	if result.Status.Resolved() {
		c.finalize(ctx, order, result, intent.Kind)
		c.tracker.Resolve(key)
	}
	return outcomeSubmitted
}

// submitWithRetry places the order with bounded exponential backoff. Every
// attempt reuses the same client ID, so a retry after an ambiguous failure
// cannot create a second order at the gateway.
func (c *Coordinator) submitWithRetry(ctx context.Context, intent domain.Intent, cid string, log *slog.Logger) (domain.OrderResult, error) {
	req := domain.OrderRequest{
		ClientID: cid,
		Symbol:   intent.Symbol,
		Venue:    intent.Venue,
		Side:     intent.Side,
		Type:     domain.OrderTypeMarket,
		Quantity: intent.Quantity,
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.cfg.BaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return domain.OrderResult{}, fmt.Errorf("executor: %w: %w", domain.ErrExecutionFailed, ctx.Err())
			case <-time.After(delay):
			}
			log.WarnContext(ctx, "retrying order",
				slog.Int("attempt", attempt+1), slog.Duration("delay", delay))
		}

		gwCtx := ctx
		var cancel context.CancelFunc
		if c.cfg.GatewayTimeout > 0 {
			gwCtx, cancel = context.WithTimeout(ctx, c.cfg.GatewayTimeout)
		}
		result, err := c.gateway.SubmitOrder(gwCtx, req)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			lastErr = err
			continue
		}
		if result.Status == domain.OrderStatusRejected {
			lastErr = fmt.Errorf("rejected: %s", result.Message)
			continue
		}
		return result, nil
	}

	return domain.OrderResult{}, fmt.Errorf("executor: %d attempts: %w: %w", c.cfg.MaxAttempts, domain.ErrExecutionFailed, lastErr)
}

// cancelOutstanding cancels a tracked order at the gateway. When the cancel
// fails because the order already filled, the fill is reconciled instead.
func (c *Coordinator) cancelOutstanding(ctx context.Context, o OutstandingOrder) error {
	cancelled, err := c.gateway.CancelOrder(ctx, o.ExchangeID, o.Symbol)
	if err != nil {
		return fmt.Errorf("executor: cancel order %s: %w", o.OrderID, err)
	}

	if cancelled {
		if err := c.orders.UpdateStatus(ctx, o.OrderID, domain.OrderStatusCancelled, 0, 0); err != nil {
			return fmt.Errorf("executor: record cancel for %s: %w", o.OrderID, err)
		}
		c.tracker.Resolve(o.Key)
		c.logger.InfoContext(ctx, "outstanding order cancelled for reversal",
			slog.String("order_id", o.OrderID))
		return nil
	}

	result, err := c.gateway.GetOrderStatus(ctx, o.ExchangeID, o.Symbol)
	if err != nil {
		return fmt.Errorf("executor: status after failed cancel of %s: %w", o.OrderID, err)
	}
	if !result.Status.Resolved() {
		return fmt.Errorf("executor: order %s neither cancellable nor resolved: %w", o.OrderID, domain.ErrConcurrentModification)
	}

	ord, err := c.orders.GetByClientID(ctx, o.ClientID)
	if err != nil {
		return fmt.Errorf("executor: load order %s: %w", o.OrderID, err)
	}
	c.finalize(ctx, ord, result, "")
	c.tracker.Resolve(o.Key)
	return nil
}

// Reconcile queries the gateway for every unresolved order of a portfolio and
// applies fills and cancels to the stores. Called at the start of each cycle.
func (c *Coordinator) Reconcile(ctx context.Context, portfolioID string) error {
	unresolved, err := c.orders.ListUnresolved(ctx, portfolioID)
	if err != nil {
		return fmt.Errorf("executor: list unresolved: %w", err)
	}

	for _, ord := range unresolved {
		result, err := c.gateway.GetOrderStatus(ctx, ord.ExchangeID, ord.Symbol)
		if err != nil {
			c.logger.WarnContext(ctx, "order status query failed",
				slog.String("order_id", ord.ID), slog.String("error", err.Error()))
			continue
		}
		if !result.Status.Resolved() {
			continue
		}
		c.finalize(ctx, ord, result, "")
		c.resolveByClientID(ord.ClientID)
	}
	return nil
}

func (c *Coordinator) resolveByClientID(cid string) {
	for _, o := range c.tracker.Snapshot() {
		if o.ClientID == cid {
			c.tracker.Resolve(o.Key)
			return
		}
	}
}

const quantityEpsilon = 1e-9

// finalize records a resolved order: status update, trade record, and the
// position mutation the fill implies.
func (c *Coordinator) finalize(ctx context.Context, ord domain.Order, result domain.OrderResult, kind domain.IntentKind) {
	if err := c.orders.UpdateStatus(ctx, ord.ID, result.Status, result.FilledQty, result.AvgPrice); err != nil {
		c.logger.ErrorContext(ctx, "order status update failed",
			slog.String("order_id", ord.ID), slog.String("error", err.Error()))
	}
	if result.Status != domain.OrderStatusFilled || result.FilledQty <= 0 {
		return
	}

	trade := domain.Trade{
		ID:          uuid.New().String(),
		PortfolioID: ord.PortfolioID,
		PositionID:  ord.PositionID,
		OrderID:     ord.ID,
		Symbol:      ord.Symbol,
		Venue:       ord.Venue,
		Side:        ord.Side,
		Quantity:    result.FilledQty,
		Price:       result.AvgPrice,
		Reason:      ord.Reason,
		ExecutedAt:  time.Now().UTC(),
	}
	if err := c.trades.Insert(ctx, trade); err != nil {
		c.logger.ErrorContext(ctx, "trade record failed",
			slog.String("order_id", ord.ID), slog.String("error", err.Error()))
	}

	if err := c.applyFill(ctx, ord, result); err != nil {
		c.logger.ErrorContext(ctx, "position update failed",
			slog.String("position_id", ord.PositionID), slog.String("error", err.Error()))
	}

	switch kind {
	case domain.IntentExitStopLoss:
		c.alert(ctx, notify.EventStopLossTriggered, "Stop loss executed",
			fmt.Sprintf("%s %s %.8f @ %.8f", ord.Symbol, ord.Side, result.FilledQty, result.AvgPrice))
	case domain.IntentExitTakeProfit:
		c.alert(ctx, notify.EventTakeProfit, "Take profit executed",
			fmt.Sprintf("%s %s %.8f @ %.8f", ord.Symbol, ord.Side, result.FilledQty, result.AvgPrice))
	case domain.IntentRebalance:
		c.alert(ctx, notify.EventRebalance, "Rebalance trade executed",
			fmt.Sprintf("%s %s %.8f @ %.8f", ord.Symbol, ord.Side, result.FilledQty, result.AvgPrice))
	}
}

// applyFill mutates the position a fill belongs to. Fills that reduce the
// position shrink or close it and realize pnl; fills that add to it grow the
// quantity at a blended entry price. A symbol-level buy without a position
// opens a new one.
func (c *Coordinator) applyFill(ctx context.Context, ord domain.Order, result domain.OrderResult) error {
	if ord.PositionID == "" {
		if ord.Side != domain.OrderSideBuy {
			return nil
		}
		pos := domain.Position{
			ID:           uuid.New().String(),
			PortfolioID:  ord.PortfolioID,
			Symbol:       ord.Symbol,
			Venue:        ord.Venue,
			Side:         domain.SideLong,
			Quantity:     result.FilledQty,
			EntryPrice:   result.AvgPrice,
			CurrentPrice: result.AvgPrice,
			State:        domain.PositionStateOpen,
			OpenedAt:     time.Now().UTC(),
		}
		return c.positions.Create(ctx, pos)
	}

	pos, err := c.positions.GetByID(ctx, ord.PositionID)
	if err != nil {
		return err
	}

	reduces := (pos.Side == domain.SideLong && ord.Side == domain.OrderSideSell) ||
		(pos.Side == domain.SideShort && ord.Side == domain.OrderSideBuy)

	if !reduces {
		total := pos.Quantity + result.FilledQty
		pos.EntryPrice = (pos.EntryPrice*pos.Quantity + result.AvgPrice*result.FilledQty) / total
		pos.Quantity = total
		pos.CurrentPrice = result.AvgPrice
		return c.positions.Update(ctx, pos)
	}

	filled := math.Min(result.FilledQty, pos.Quantity)
	if pos.Quantity-filled <= quantityEpsilon {
		return c.positions.Close(ctx, pos.ID, result.AvgPrice)
	}

	realized := (result.AvgPrice - pos.EntryPrice) * filled
	if pos.Side == domain.SideShort {
		realized = -realized
	}
	pos.Quantity -= filled
	pos.CurrentPrice = result.AvgPrice
	pos.RealizedPnL += realized
	pos.State = domain.PositionStatePartiallyClosed
	return c.positions.Update(ctx, pos)
}

func (c *Coordinator) alert(ctx context.Context, event, title, message string) {
	if c.alerter == nil {
		return
	}
	if err := c.alerter.Notify(ctx, event, title, message); err != nil {
		c.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", event), slog.String("error", err.Error()))
	}
}
