package risk

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvalis/riskbot/internal/domain"
)

func TestSize_RiskBudgetScenario(t *testing.T) {
	stop := 48000.0
	res, err := Size(SizingInput{
		PortfolioValue:   10000,
		AvailableBalance: 10000,
		EntryPrice:       50000,
		StopLossPrice:    &stop,
		RiskPct:          2,
		MaxPositionPct:   10,
	})
	require.NoError(t, err)

	// riskAmount=200, priceRisk=2000 -> 0.1; capped by 10% position value
	// (1000) -> 0.02.
	assert.InDelta(t, 0.02, res.Quantity, 1e-9)
	assert.InDelta(t, 1000.0, res.PositionValue, 1e-6)
	assert.InDelta(t, 200.0, res.RiskAmount, 1e-9)
}

func TestSize_NoStopUsesDefaultPriceRisk(t *testing.T) {
	res, err := Size(SizingInput{
		PortfolioValue:   10000,
		AvailableBalance: 10000,
		EntryPrice:       100,
		RiskPct:          2,
		MaxPositionPct:   50,
	})
	require.NoError(t, err)

	// riskAmount=200, assumed price risk 2% of entry = 2 -> quantity 100,
	// value 10000, capped by max position 5000 -> 50.
	assert.InDelta(t, 50.0, res.Quantity, 1e-9)
}

func TestSize_InsufficientCapital(t *testing.T) {
	_, err := Size(SizingInput{
		PortfolioValue:   10000,
		AvailableBalance: 0,
		EntryPrice:       100,
		RiskPct:          2,
		MaxPositionPct:   10,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientCapital)
}

func TestSize_InvalidInput(t *testing.T) {
	stop := 100.0
	cases := []SizingInput{
		{PortfolioValue: 10000, AvailableBalance: 100, EntryPrice: 0, RiskPct: 2, MaxPositionPct: 10},
		{PortfolioValue: 10000, AvailableBalance: 100, EntryPrice: 100, RiskPct: 0, MaxPositionPct: 10},
		{PortfolioValue: 10000, AvailableBalance: 100, EntryPrice: 100, RiskPct: 2, MaxPositionPct: 0},
		{PortfolioValue: 10000, AvailableBalance: 100, EntryPrice: 100, StopLossPrice: &stop, RiskPct: 2, MaxPositionPct: 10},
	}
	for _, in := range cases {
		_, err := Size(in)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
}

func TestSize_BoundsHoldUnderFuzzedInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		portfolioValue := 100 + rng.Float64()*1_000_000
		balance := 1 + rng.Float64()*portfolioValue
		entry := 0.01 + rng.Float64()*100_000
		riskPct := 0.1 + rng.Float64()*10
		maxPositionPct := 1 + rng.Float64()*50

		in := SizingInput{
			PortfolioValue:   portfolioValue,
			AvailableBalance: balance,
			EntryPrice:       entry,
			RiskPct:          riskPct,
			MaxPositionPct:   maxPositionPct,
		}
		if rng.Intn(2) == 0 {
			stop := entry * (0.5 + rng.Float64()*0.45)
			in.StopLossPrice = &stop
		}

		res, err := Size(in)
		require.NoError(t, err)

		assert.LessOrEqual(t, res.PositionValue, balance*0.95*(1+1e-9))
		assert.LessOrEqual(t, res.PositionValue, portfolioValue*maxPositionPct/100*(1+1e-9))
		assert.GreaterOrEqual(t, res.Quantity, 0.0)
	}
}
