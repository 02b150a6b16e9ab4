// Package rebalance plans corrective trades that move a portfolio back
// toward its target allocation. Planning is side-effect free: it proposes
// trades, the execution coordinator decides whether to act on them.
package rebalance

import (
	"sort"

	"github.com/corvalis/riskbot/internal/domain"
)

// Config tunes the planner.
type Config struct {
	// Threshold is the absolute weight deviation (fraction) beyond which a
	// symbol is flagged for rebalancing, e.g. 0.05.
	Threshold float64
	// MinNotional suppresses trades below this currency value.
	MinNotional float64
}

// DefaultConfig returns the standard planner settings: a 5% deviation
// threshold and a minimum trade value of 10 currency units.
func DefaultConfig() Config {
	return Config{Threshold: 0.05, MinNotional: 10}
}

// ProposedTrade is a single corrective trade. Quantity is always positive;
// the direction lives in Side.
type ProposedTrade struct {
	Symbol        string
	Venue         string
	Side          domain.OrderSide
	Quantity      float64
	Price         float64
	ValueDelta    float64 // signed: target value minus current value
	CurrentWeight float64
	TargetWeight  float64
}

// Plan compares current per-symbol weights against the portfolio's target
// allocation and proposes trades for symbols whose deviation exceeds the
// threshold. Symbols without a usable price are returned in skipped and
// excluded from planning; they never abort the whole plan.
func Plan(portfolio domain.Portfolio, positions []domain.Position, prices map[string]float64, cfg Config) (trades []ProposedTrade, skipped []string) {
	totalValue := portfolio.TotalValue
	if totalValue <= 0 || len(portfolio.TargetAllocation) == 0 {
		return nil, nil
	}

	currentValue := map[string]float64{}
	venues := map[string]string{}
	for _, pos := range positions {
		if !pos.IsOpen() {
			continue
		}
		price, ok := prices[pos.Symbol]
		if !ok || price <= 0 {
			continue
		}
		currentValue[pos.Symbol] += pos.Quantity * price
		venues[pos.Symbol] = pos.Venue
	}

	// Evaluate the union of held and targeted symbols so missing target
	// assets produce buys and untargeted holdings produce sells.
	symbolSet := map[string]bool{}
	for sym := range currentValue {
		symbolSet[sym] = true
	}
	for sym := range portfolio.TargetAllocation {
		symbolSet[sym] = true
	}

	symbols := make([]string, 0, len(symbolSet))
	for sym := range symbolSet {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		price, ok := prices[sym]
		if !ok || price <= 0 {
			skipped = append(skipped, sym)
			continue
		}

		current := currentValue[sym] / totalValue
		target := portfolio.TargetAllocation[sym]
		deviation := current - target
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation <= cfg.Threshold {
			continue
		}

		valueDelta := target*totalValue - currentValue[sym]
		abs := valueDelta
		if abs < 0 {
			abs = -abs
		}
		if abs < cfg.MinNotional {
			continue
		}

		side := domain.OrderSideBuy
		if valueDelta < 0 {
			side = domain.OrderSideSell
		}

		trades = append(trades, ProposedTrade{
			Symbol:        sym,
			Venue:         venues[sym],
			Side:          side,
			Quantity:      abs / price,
			Price:         price,
			ValueDelta:    valueDelta,
			CurrentWeight: current,
			TargetWeight:  target,
		})
	}

	return trades, skipped
}
