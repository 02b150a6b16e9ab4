// Package risk contains the pure calculators of the engine: position sizing,
// stop levels, trailing stops, and portfolio risk assessment. Nothing in this
// package performs I/O or mutates state; callers decide how to act on the
// results.
package risk

import (
	"fmt"
	"math"

	"github.com/corvalis/riskbot/internal/domain"
)

// defaultPriceRiskPct is the assumed adverse move when no stop loss is given.
const defaultPriceRiskPct = 2.0

// balanceBuffer keeps 5% of available balance uncommitted.
const balanceBuffer = 0.95

// SizingInput carries everything the sizing calculator needs.
type SizingInput struct {
	PortfolioValue   float64
	AvailableBalance float64
	EntryPrice       float64
	StopLossPrice    *float64
	RiskPct          float64 // share of portfolio value to risk, e.g. 2.0
	MaxPositionPct   float64 // cap on position value as share of portfolio, e.g. 10.0
}

// SizingResult describes the computed position size and its bounds.
type SizingResult struct {
	Quantity        float64
	PositionValue   float64
	RiskAmount      float64
	PositionPct     float64
	RequiredCapital float64
}

// Size computes the position quantity from the risk budget, entry price, and
// stop distance, bounded simultaneously by the maximum position share and the
// available balance (less a 5% buffer). The smallest bound wins.
func Size(in SizingInput) (SizingResult, error) {
	if in.AvailableBalance <= 0 {
		return SizingResult{}, fmt.Errorf("risk: sizing: %w", domain.ErrInsufficientCapital)
	}
	if in.EntryPrice <= 0 || in.PortfolioValue <= 0 || in.RiskPct <= 0 || in.MaxPositionPct <= 0 {
		return SizingResult{}, fmt.Errorf("risk: sizing: %w", domain.ErrInvalidInput)
	}

	riskAmount := in.PortfolioValue * in.RiskPct / 100

	priceRisk := in.EntryPrice * defaultPriceRiskPct / 100
	if in.StopLossPrice != nil {
		priceRisk = math.Abs(in.EntryPrice - *in.StopLossPrice)
		if priceRisk == 0 {
			return SizingResult{}, fmt.Errorf("risk: sizing: stop equals entry: %w", domain.ErrInvalidInput)
		}
	}

	quantity := riskAmount / priceRisk

	maxPositionValue := in.PortfolioValue * in.MaxPositionPct / 100
	if q := maxPositionValue / in.EntryPrice; q < quantity {
		quantity = q
	}
	if q := in.AvailableBalance * balanceBuffer / in.EntryPrice; q < quantity {
		quantity = q
	}

	positionValue := quantity * in.EntryPrice
	return SizingResult{
		Quantity:        quantity,
		PositionValue:   positionValue,
		RiskAmount:      riskAmount,
		PositionPct:     positionValue / in.PortfolioValue * 100,
		RequiredCapital: positionValue,
	}, nil
}
