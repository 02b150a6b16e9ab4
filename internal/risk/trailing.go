package risk

import "github.com/corvalis/riskbot/internal/domain"

// TrailingConfig defines the two-tier profit ladder for trailing stops. Gains
// are percentages of entry price; locks are the profit percentage secured by
// the new stop (Tier1Lock of 2 moves the stop to breakeven +2%).
type TrailingConfig struct {
	Tier1GainPct float64
	Tier1LockPct float64
	Tier2GainPct float64
	Tier2LockPct float64
}

// DefaultTrailingConfig returns the standard ladder: at +10% gain the stop
// moves to breakeven +2%, at +20% it locks in 10%.
func DefaultTrailingConfig() TrailingConfig {
	return TrailingConfig{
		Tier1GainPct: 10,
		Tier1LockPct: 2,
		Tier2GainPct: 20,
		Tier2LockPct: 10,
	}
}

// TrailingStop recomputes the stop for a position given the current price.
// It returns the new stop price, or nil when no update applies. The rule is
// strictly monotonic: the returned stop only ever moves in the holder's
// favour relative to the existing stop, so repeated calls with any later
// price never loosen a previously tightened stop.
func TrailingStop(pos domain.Position, price float64, cfg TrailingConfig) *float64 {
	if pos.EntryPrice <= 0 || price <= 0 {
		return nil
	}

	gainPct := pos.PnLPct(price)

	var lockPct float64
	switch {
	case gainPct >= cfg.Tier2GainPct:
		lockPct = cfg.Tier2LockPct
	case gainPct >= cfg.Tier1GainPct:
		lockPct = cfg.Tier1LockPct
	default:
		return nil
	}

	var candidate float64
	if pos.Side == domain.SideLong {
		candidate = pos.EntryPrice * (1 + lockPct/100)
		if pos.StopLoss != nil && candidate <= *pos.StopLoss {
			return nil
		}
	} else {
		candidate = pos.EntryPrice * (1 - lockPct/100)
		if pos.StopLoss != nil && candidate >= *pos.StopLoss {
			return nil
		}
	}

	return &candidate
}
