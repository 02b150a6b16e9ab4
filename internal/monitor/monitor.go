// Package monitor evaluates open positions against live prices. Evaluation
// is pure: it reads one immutable price snapshot per position and returns
// the intents and stop updates the execution coordinator should act on.
package monitor

import (
	"fmt"
	"time"

	"github.com/corvalis/riskbot/internal/domain"
	"github.com/corvalis/riskbot/internal/risk"
)

// Config tunes the per-position evaluation rules.
type Config struct {
	Trailing risk.TrailingConfig
	// ReviewLossPct is the unrealized loss (negative pct) below which an
	// advisory review intent is emitted, e.g. -10.
	ReviewLossPct float64
	// PartialExitFraction ladders take-profit exits: an Open position exits
	// this fraction first and the remainder on the next trigger. Zero means
	// full exit.
	PartialExitFraction float64
}

// DefaultConfig returns the standard monitoring rules.
func DefaultConfig() Config {
	return Config{
		Trailing:      risk.DefaultTrailingConfig(),
		ReviewLossPct: -10,
	}
}

// Evaluation is the outcome of evaluating one position at one price.
type Evaluation struct {
	Intents []domain.Intent
	// NewStop is a tightened trailing stop, nil when unchanged.
	NewStop *float64
}

// exitSide returns the order side that reduces the position.
func exitSide(side domain.Side) domain.OrderSide {
	if side == domain.SideLong {
		return domain.OrderSideSell
	}
	return domain.OrderSideBuy
}

// stopBreached reports whether price has crossed the stop adversely.
func stopBreached(pos domain.Position, price float64) bool {
	if pos.StopLoss == nil {
		return false
	}
	if pos.Side == domain.SideLong {
		return price <= *pos.StopLoss
	}
	return price >= *pos.StopLoss
}

// targetReached reports whether price has reached the take-profit level.
func targetReached(pos domain.Position, price float64) bool {
	if pos.TakeProfit == nil {
		return false
	}
	if pos.Side == domain.SideLong {
		return price >= *pos.TakeProfit
	}
	return price <= *pos.TakeProfit
}

// Evaluate runs one position through the state machine at the given price
// snapshot. Closed positions produce nothing. The price must be a live quote;
// stale prices are the caller's responsibility to filter beforehand.
func Evaluate(pos domain.Position, price float64, at time.Time, cfg Config) (Evaluation, error) {
	if price <= 0 {
		return Evaluation{}, fmt.Errorf("monitor: position %s: price %.8f: %w", pos.ID, price, domain.ErrInvalidInput)
	}

	switch pos.State {
	case domain.PositionStateClosed:
		return Evaluation{}, nil

	case domain.PositionStateOpen, domain.PositionStatePartiallyClosed:
		if pos.Quantity <= 0 {
			return Evaluation{}, fmt.Errorf("monitor: position %s open with quantity %.8f: %w", pos.ID, pos.Quantity, domain.ErrInvalidInput)
		}

	default:
		return Evaluation{}, fmt.Errorf("monitor: position %s: unknown state %q: %w", pos.ID, pos.State, domain.ErrInvalidInput)
	}

	base := domain.Intent{
		PortfolioID:  pos.PortfolioID,
		PositionID:   pos.ID,
		Symbol:       pos.Symbol,
		Venue:        pos.Venue,
		Side:         exitSide(pos.Side),
		TriggerPrice: price,
		CreatedAt:    at,
	}

	// Stop breach wins over everything: exit the full remaining quantity.
	if stopBreached(pos, price) {
		intent := base
		intent.Kind = domain.IntentExitStopLoss
		intent.Quantity = pos.Quantity
		intent.Reason = fmt.Sprintf("stop loss %.8f breached at %.8f", *pos.StopLoss, price)
		return Evaluation{Intents: []domain.Intent{intent}}, nil
	}

	if targetReached(pos, price) {
		intent := base
		intent.Kind = domain.IntentExitTakeProfit
		intent.Quantity = pos.Quantity
		if cfg.PartialExitFraction > 0 && cfg.PartialExitFraction < 1 && pos.State == domain.PositionStateOpen {
			intent.Quantity = pos.Quantity * cfg.PartialExitFraction
		}
		intent.Reason = fmt.Sprintf("take profit %.8f reached at %.8f", *pos.TakeProfit, price)
		return Evaluation{Intents: []domain.Intent{intent}}, nil
	}

	var out Evaluation

	// Advisory only: large unrealized loss flags the position for review but
	// never forces an exit.
	if pnl := pos.PnLPct(price); pnl < cfg.ReviewLossPct {
		intent := base
		intent.Kind = domain.IntentReviewPosition
		intent.Quantity = pos.Quantity
		intent.Reason = fmt.Sprintf("unrealized loss %.1f%%", pnl)
		out.Intents = append(out.Intents, intent)
	}

	out.NewStop = risk.TrailingStop(pos, price, cfg.Trailing)
	return out, nil
}
