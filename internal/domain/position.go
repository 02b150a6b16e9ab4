package domain

import "time"

// Side indicates the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// PositionState tracks the position lifecycle.
type PositionState string

const (
	PositionStateOpen            PositionState = "open"
	PositionStatePartiallyClosed PositionState = "partially_closed"
	PositionStateClosed          PositionState = "closed"
)

// Position represents an open or historical trading position. A position is
// owned exclusively by its portfolio and is mutated only by the execution
// coordinator.
type Position struct {
	ID           string
	PortfolioID  string
	Symbol       string
	Venue        string
	Side         Side
	Quantity     float64
	EntryPrice   float64
	CurrentPrice float64
	StopLoss     *float64
	TakeProfit   *float64
	State        PositionState
	NeedsReview  bool // set when execution retries are exhausted
	OpenedAt     time.Time
	ClosedAt     *time.Time
	ExitPrice    *float64
	RealizedPnL  float64
}

// Value returns the current notional value of the position.
func (p Position) Value() float64 {
	return p.Quantity * p.CurrentPrice
}

// UnrealizedPnL computes the open profit or loss at the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	switch p.Side {
	case SideLong:
		return (price - p.EntryPrice) * p.Quantity
	case SideShort:
		return (p.EntryPrice - price) * p.Quantity
	}
	return 0
}

// PnLPct computes the open profit or loss as a percentage of the entry price.
func (p Position) PnLPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	switch p.Side {
	case SideLong:
		return (price - p.EntryPrice) / p.EntryPrice * 100
	case SideShort:
		return (p.EntryPrice - price) / p.EntryPrice * 100
	}
	return 0
}

// IsOpen reports whether the position still carries quantity.
func (p Position) IsOpen() bool {
	return p.State == PositionStateOpen || p.State == PositionStatePartiallyClosed
}
