package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvalis/riskbot/internal/domain"
)

func TestComputeStopLoss_Percentage(t *testing.T) {
	long, err := ComputeStopLoss(100, domain.SideLong, StopMethodPercentage, StopParams{Percentage: 2})
	require.NoError(t, err)
	assert.InDelta(t, 98.0, long.Price, 1e-9)
	assert.InDelta(t, 2.0, long.RiskPct, 1e-9)

	short, err := ComputeStopLoss(100, domain.SideShort, StopMethodPercentage, StopParams{Percentage: 2})
	require.NoError(t, err)
	assert.InDelta(t, 102.0, short.Price, 1e-9)
}

func TestComputeStopLoss_Volatility(t *testing.T) {
	sl, err := ComputeStopLoss(50000, domain.SideLong, StopMethodVolatility, StopParams{ATR: 800, ATRMultiplier: 2})
	require.NoError(t, err)
	assert.InDelta(t, 48400.0, sl.Price, 1e-6)

	_, err = ComputeStopLoss(50000, domain.SideLong, StopMethodVolatility, StopParams{ATRMultiplier: 2})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestComputeStopLoss_Structural(t *testing.T) {
	sl, err := ComputeStopLoss(100, domain.SideLong, StopMethodStructural, StopParams{Level: 94.5})
	require.NoError(t, err)
	assert.InDelta(t, 94.5, sl.Price, 1e-9)

	// A "stop" above a long entry is rejected.
	_, err = ComputeStopLoss(100, domain.SideLong, StopMethodStructural, StopParams{Level: 105})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestComputeTakeProfit_TargetPercentage(t *testing.T) {
	tp, err := ComputeTakeProfit(100, domain.SideLong, TakeProfitParams{TargetPct: 5})
	require.NoError(t, err)
	assert.InDelta(t, 105.0, tp.Price, 1e-9)

	tp, err = ComputeTakeProfit(100, domain.SideShort, TakeProfitParams{TargetPct: 5})
	require.NoError(t, err)
	assert.InDelta(t, 95.0, tp.Price, 1e-9)
}

func TestComputeTakeProfit_MissingParams(t *testing.T) {
	_, err := ComputeTakeProfit(100, domain.SideLong, TakeProfitParams{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// For every stop method, a take profit derived with ratio R must reward
// exactly R times the risked amount.
func TestRiskRewardRatioHolds(t *testing.T) {
	entry := 200.0
	ratios := []float64{1, 1.5, 2, 3}

	methods := []struct {
		method StopMethod
		params StopParams
	}{
		{StopMethodPercentage, StopParams{Percentage: 3}},
		{StopMethodVolatility, StopParams{ATR: 4, ATRMultiplier: 1.5}},
		{StopMethodStructural, StopParams{Level: 190}},
	}

	for _, side := range []domain.Side{domain.SideLong, domain.SideShort} {
		for _, m := range methods {
			params := m.params
			if m.method == StopMethodStructural && side == domain.SideShort {
				params.Level = 210
			}
			sl, err := ComputeStopLoss(entry, side, m.method, params)
			require.NoError(t, err)

			for _, ratio := range ratios {
				tp, err := ComputeTakeProfit(entry, side, TakeProfitParams{
					StopLossPrice:   sl.Price,
					RiskRewardRatio: ratio,
				})
				require.NoError(t, err)

				risk := entry - sl.Price
				reward := tp.Price - entry
				if side == domain.SideShort {
					risk = sl.Price - entry
					reward = entry - tp.Price
				}
				assert.InDelta(t, risk*ratio, reward, 1e-9,
					"method=%s side=%s ratio=%.1f", m.method, side, ratio)
			}
		}
	}
}
