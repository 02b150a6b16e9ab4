package risk

import (
	"fmt"
	"math"

	"github.com/corvalis/riskbot/internal/domain"
)

// StopMethod selects how the stop-loss level is derived.
type StopMethod string

const (
	// StopMethodPercentage places the stop a fixed percentage from entry.
	StopMethodPercentage StopMethod = "percentage"
	// StopMethodVolatility places the stop an ATR multiple from entry; the
	// ATR value is supplied by the technical analysis collaborator.
	StopMethodVolatility StopMethod = "volatility"
	// StopMethodStructural uses an explicit support/resistance level.
	StopMethodStructural StopMethod = "structural"
)

// StopParams carries the method-specific inputs for ComputeStopLoss.
type StopParams struct {
	Percentage    float64 // for percentage method
	ATR           float64 // for volatility method
	ATRMultiplier float64 // for volatility method
	Level         float64 // for structural method
}

// StopLevel is the computed stop with its implied risk.
type StopLevel struct {
	Price   float64
	RiskPct float64 // distance from entry as a percentage of entry
}

// ComputeStopLoss derives a stop-loss price for the given entry and side.
// It returns ErrInvalidInput when the method's required parameters are
// missing or the resulting level is on the wrong side of the entry.
func ComputeStopLoss(entry float64, side domain.Side, method StopMethod, p StopParams) (StopLevel, error) {
	if entry <= 0 {
		return StopLevel{}, fmt.Errorf("risk: stop loss: entry must be positive: %w", domain.ErrInvalidInput)
	}

	var price float64
	switch method {
	case StopMethodPercentage:
		if p.Percentage <= 0 {
			return StopLevel{}, fmt.Errorf("risk: stop loss: percentage required: %w", domain.ErrInvalidInput)
		}
		if side == domain.SideLong {
			price = entry * (1 - p.Percentage/100)
		} else {
			price = entry * (1 + p.Percentage/100)
		}

	case StopMethodVolatility:
		if p.ATR <= 0 || p.ATRMultiplier <= 0 {
			return StopLevel{}, fmt.Errorf("risk: stop loss: atr and multiplier required: %w", domain.ErrInvalidInput)
		}
		if side == domain.SideLong {
			price = entry - p.ATR*p.ATRMultiplier
		} else {
			price = entry + p.ATR*p.ATRMultiplier
		}

	case StopMethodStructural:
		if p.Level <= 0 {
			return StopLevel{}, fmt.Errorf("risk: stop loss: level required: %w", domain.ErrInvalidInput)
		}
		price = p.Level

	default:
		return StopLevel{}, fmt.Errorf("risk: stop loss: unknown method %q: %w", method, domain.ErrInvalidInput)
	}

	if side == domain.SideLong && price >= entry {
		return StopLevel{}, fmt.Errorf("risk: stop loss %.8f not below entry %.8f: %w", price, entry, domain.ErrInvalidInput)
	}
	if side == domain.SideShort && price <= entry {
		return StopLevel{}, fmt.Errorf("risk: stop loss %.8f not above entry %.8f: %w", price, entry, domain.ErrInvalidInput)
	}

	return StopLevel{
		Price:   price,
		RiskPct: math.Abs(entry-price) / entry * 100,
	}, nil
}

// TakeProfitParams carries the inputs for ComputeTakeProfit. Either TargetPct
// is set, or StopLossPrice and RiskRewardRatio are set together.
type TakeProfitParams struct {
	TargetPct       float64
	StopLossPrice   float64
	RiskRewardRatio float64
}

// TakeProfitLevel is the computed target with its implied reward.
type TakeProfitLevel struct {
	Price     float64
	RewardPct float64
}

// ComputeTakeProfit derives a take-profit price either from a target
// percentage or from a risk/reward ratio applied to a known stop distance.
func ComputeTakeProfit(entry float64, side domain.Side, p TakeProfitParams) (TakeProfitLevel, error) {
	if entry <= 0 {
		return TakeProfitLevel{}, fmt.Errorf("risk: take profit: entry must be positive: %w", domain.ErrInvalidInput)
	}

	var price float64
	switch {
	case p.TargetPct > 0:
		if side == domain.SideLong {
			price = entry * (1 + p.TargetPct/100)
		} else {
			price = entry * (1 - p.TargetPct/100)
		}

	case p.StopLossPrice > 0 && p.RiskRewardRatio > 0:
		reward := math.Abs(entry-p.StopLossPrice) * p.RiskRewardRatio
		if side == domain.SideLong {
			price = entry + reward
		} else {
			price = entry - reward
		}

	default:
		return TakeProfitLevel{}, fmt.Errorf("risk: take profit: target pct or stop+ratio required: %w", domain.ErrInvalidInput)
	}

	if price <= 0 {
		return TakeProfitLevel{}, fmt.Errorf("risk: take profit %.8f not positive: %w", price, domain.ErrInvalidInput)
	}

	return TakeProfitLevel{
		Price:     price,
		RewardPct: math.Abs(price-entry) / entry * 100,
	}, nil
}
