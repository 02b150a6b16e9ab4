package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/corvalis/riskbot/internal/domain"
)

// Limits are the thresholds applied during portfolio risk assessment.
type Limits struct {
	MaxPortfolioRisk       float64 // total risk pct above which a warning fires
	MaxSectorConcentration float64 // sector pct above which a warning fires
	SinglePositionWarnPct  float64 // single position pct above which a warning fires
}

// DefaultLimits returns the standard assessment thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxPortfolioRisk:       10,
		MaxSectorConcentration: 30,
		SinglePositionWarnPct:  15,
	}
}

// defaultPositionRiskFraction is the assumed at-risk share of a position with
// no stop loss.
const defaultPositionRiskFraction = 0.02

// Assess rolls open positions into a portfolio-level risk view: per-position
// risk contributions, sector concentration (grouped by the caller-supplied
// symbol->sector map), warnings, and recommendations. It is pure and
// deterministic: identical inputs always produce identical output.
func Assess(portfolio domain.Portfolio, positions []domain.Position, sectors map[string]string, limits Limits) domain.RiskAssessment {
	out := domain.RiskAssessment{
		PortfolioID:         portfolio.ID,
		RiskLevel:           domain.RiskLevelLow,
		SectorConcentration: map[string]float64{},
	}

	totalValue := portfolio.TotalValue
	if totalValue <= 0 || len(positions) == 0 {
		return out
	}

	sectorValues := map[string]float64{}
	for _, pos := range positions {
		if !pos.IsOpen() {
			continue
		}
		positionValue := pos.Value()
		positionPct := positionValue / totalValue * 100

		var riskPct float64
		if pos.StopLoss != nil {
			riskPct = math.Abs(pos.CurrentPrice-*pos.StopLoss) * pos.Quantity / totalValue * 100
		} else {
			riskPct = positionPct * defaultPositionRiskFraction
		}

		out.TotalRiskPct += riskPct
		out.PerPositionRisk = append(out.PerPositionRisk, domain.PositionRisk{
			PositionID:  pos.ID,
			Symbol:      pos.Symbol,
			RiskPct:     riskPct,
			PositionPct: positionPct,
		})

		if positionPct > limits.SinglePositionWarnPct {
			out.Warnings = append(out.Warnings, fmt.Sprintf("large position in %s: %.1f%% of portfolio", pos.Symbol, positionPct))
			out.Recommendations = append(out.Recommendations, fmt.Sprintf("consider reducing %s position size", pos.Symbol))
		}

		sector := sectors[pos.Symbol]
		if sector == "" {
			sector = "other"
		}
		sectorValues[sector] += positionValue
	}

	for sector, value := range sectorValues {
		pct := value / totalValue * 100
		out.SectorConcentration[sector] = pct
		if pct > limits.MaxSectorConcentration {
			out.Warnings = append(out.Warnings, fmt.Sprintf("high %s concentration: %.1f%%", sector, pct))
			out.Recommendations = append(out.Recommendations, fmt.Sprintf("diversify away from %s", sector))
		}
	}

	if out.TotalRiskPct > limits.MaxPortfolioRisk {
		out.Warnings = append(out.Warnings, fmt.Sprintf("total portfolio risk %.1f%% exceeds limit %.1f%%", out.TotalRiskPct, limits.MaxPortfolioRisk))
		out.Recommendations = append(out.Recommendations, "reduce position sizes or tighten stop losses")
	}

	switch {
	case out.TotalRiskPct < 5:
		out.RiskLevel = domain.RiskLevelLow
	case out.TotalRiskPct < 10:
		out.RiskLevel = domain.RiskLevelMedium
	default:
		out.RiskLevel = domain.RiskLevelHigh
	}

	return out
}

// MaxDrawdown computes the largest peak-to-trough decline over a value
// series, as a fraction of the peak. Returns 0 for fewer than two points.
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	peak := values[0]
	var maxDD float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// percentile returns the p-th percentile (0..100) of the sorted copy of xs
// using nearest-rank interpolation.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
