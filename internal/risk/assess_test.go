package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvalis/riskbot/internal/domain"
)

func testPortfolio(totalValue float64) domain.Portfolio {
	return domain.Portfolio{
		ID:         "pf-1",
		TotalValue: totalValue,
	}
}

func openPosition(id, symbol string, qty, price float64, stop *float64) domain.Position {
	return domain.Position{
		ID:           id,
		Symbol:       symbol,
		Side:         domain.SideLong,
		Quantity:     qty,
		EntryPrice:   price,
		CurrentPrice: price,
		StopLoss:     stop,
		State:        domain.PositionStateOpen,
	}
}

func TestAssess_EmptyPortfolio(t *testing.T) {
	out := Assess(testPortfolio(10000), nil, nil, DefaultLimits())
	assert.Zero(t, out.TotalRiskPct)
	assert.Equal(t, domain.RiskLevelLow, out.RiskLevel)
	assert.Empty(t, out.Warnings)
}

func TestAssess_PerPositionRiskWithStop(t *testing.T) {
	stop := 95.0
	positions := []domain.Position{
		openPosition("p1", "BTC/USDT", 10, 100, &stop),
	}
	out := Assess(testPortfolio(10000), positions, nil, DefaultLimits())

	// risk = |100-95| * 10 / 10000 * 100 = 0.5%
	require.Len(t, out.PerPositionRisk, 1)
	assert.InDelta(t, 0.5, out.PerPositionRisk[0].RiskPct, 1e-9)
	assert.InDelta(t, 10.0, out.PerPositionRisk[0].PositionPct, 1e-9)
	assert.Equal(t, domain.RiskLevelLow, out.RiskLevel)
}

func TestAssess_DefaultRiskWithoutStop(t *testing.T) {
	positions := []domain.Position{
		openPosition("p1", "ETH/USDT", 10, 100, nil),
	}
	out := Assess(testPortfolio(10000), positions, nil, DefaultLimits())

	// positionPct = 10%, default risk = 10 * 0.02 = 0.2%
	require.Len(t, out.PerPositionRisk, 1)
	assert.InDelta(t, 0.2, out.PerPositionRisk[0].RiskPct, 1e-9)
}

func TestAssess_WarningsAndLevels(t *testing.T) {
	stop := 50.0
	positions := []domain.Position{
		// 20% of portfolio, huge stop distance -> large position + high risk.
		openPosition("p1", "BTC/USDT", 20, 100, &stop),
	}
	sectors := map[string]string{"BTC/USDT": "crypto"}
	out := Assess(testPortfolio(10000), positions, sectors, DefaultLimits())

	assert.Equal(t, domain.RiskLevelHigh, out.RiskLevel)
	assert.NotEmpty(t, out.Warnings)
	assert.NotEmpty(t, out.Recommendations)
	assert.InDelta(t, 20.0, out.SectorConcentration["crypto"], 1e-9)
}

func TestAssess_Idempotent(t *testing.T) {
	stop := 90.0
	positions := []domain.Position{
		openPosition("p1", "BTC/USDT", 5, 100, &stop),
		openPosition("p2", "ETH/USDT", 30, 50, nil),
	}
	sectors := map[string]string{"BTC/USDT": "crypto", "ETH/USDT": "crypto"}

	a := Assess(testPortfolio(20000), positions, sectors, DefaultLimits())
	b := Assess(testPortfolio(20000), positions, sectors, DefaultLimits())

	assert.Equal(t, a.TotalRiskPct, b.TotalRiskPct)
	assert.Equal(t, a.RiskLevel, b.RiskLevel)
	assert.Equal(t, a.Warnings, b.Warnings)
	assert.Equal(t, a.SectorConcentration, b.SectorConcentration)
}

func TestMaxDrawdown(t *testing.T) {
	assert.Zero(t, MaxDrawdown(nil))
	assert.Zero(t, MaxDrawdown([]float64{100}))
	assert.InDelta(t, 0.25, MaxDrawdown([]float64{100, 120, 90, 110}), 1e-9)
	assert.Zero(t, MaxDrawdown([]float64{100, 110, 120}))
}
