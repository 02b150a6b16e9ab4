package risk

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvalis/riskbot/internal/domain"
)

func mcPosition(symbol string, qty, price float64) domain.Position {
	return domain.Position{
		Symbol:       symbol,
		Side:         domain.SideLong,
		Quantity:     qty,
		EntryPrice:   price,
		CurrentPrice: price,
		State:        domain.PositionStateOpen,
	}
}

func TestMonteCarloVaR_EmptyPortfolio(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	out := MonteCarloVaR(nil, 10_000, DefaultVaRConfig(), rng)
	assert.Zero(t, out.VaR95Pct)
	assert.Zero(t, out.ExpectedShortfall)

	out = MonteCarloVaR([]domain.Position{mcPosition("BTC/USDT", 1, 100)}, 0, DefaultVaRConfig(), rng)
	assert.Zero(t, out.VaR95Pct)
}

func TestMonteCarloVaR_SeededReproducible(t *testing.T) {
	positions := []domain.Position{
		mcPosition("BTC/USDT", 1, 5_000),
		mcPosition("ETH/USDT", 10, 300),
	}
	cfg := DefaultVaRConfig()

	a := MonteCarloVaR(positions, 10_000, cfg, rand.New(rand.NewSource(42)))
	b := MonteCarloVaR(positions, 10_000, cfg, rand.New(rand.NewSource(42)))

	assert.Equal(t, a.VaR95Pct, b.VaR95Pct)
	assert.Equal(t, a.ExpectedShortfall, b.ExpectedShortfall)
}

func TestMonteCarloVaR_ShortfallExceedsVaR(t *testing.T) {
	positions := []domain.Position{
		mcPosition("BTC/USDT", 0.1, 50_000),
		mcPosition("ETH/USDT", 2, 2_500),
	}
	rng := rand.New(rand.NewSource(42))
	out := MonteCarloVaR(positions, 10_000, DefaultVaRConfig(), rng)

	assert.Greater(t, out.VaR95Pct, 0.0)
	// ES averages the tail beyond the cutoff, so it is always at least VaR.
	assert.GreaterOrEqual(t, out.ExpectedShortfall, out.VaR95Pct)
}

func TestMonteCarloVaR_HigherVolatilityRaisesVaR(t *testing.T) {
	positions := []domain.Position{mcPosition("BTC/USDT", 0.2, 50_000)}

	calm := DefaultVaRConfig()
	calm.DefaultVol = 0.01
	stormy := DefaultVaRConfig()
	stormy.DefaultVol = 0.05

	low := MonteCarloVaR(positions, 10_000, calm, rand.New(rand.NewSource(7)))
	high := MonteCarloVaR(positions, 10_000, stormy, rand.New(rand.NewSource(7)))

	assert.Greater(t, high.VaR95Pct, low.VaR95Pct)
}

func TestMonteCarloVaR_PerAssetVolOverride(t *testing.T) {
	positions := []domain.Position{mcPosition("DOGE/USDT", 100_000, 0.1)}

	base := DefaultVaRConfig()
	override := DefaultVaRConfig()
	override.AssetVol = map[string]float64{"DOGE/USDT": 0.10}

	plain := MonteCarloVaR(positions, 10_000, base, rand.New(rand.NewSource(9)))
	bumped := MonteCarloVaR(positions, 10_000, override, rand.New(rand.NewSource(9)))

	assert.Greater(t, bumped.VaR95Pct, plain.VaR95Pct)
}

func TestMonteCarloVaR_ClosedPositionsIgnored(t *testing.T) {
	closed := mcPosition("BTC/USDT", 1, 50_000)
	closed.State = domain.PositionStateClosed

	rng := rand.New(rand.NewSource(3))
	out := MonteCarloVaR([]domain.Position{closed}, 50_000, DefaultVaRConfig(), rng)
	assert.Zero(t, out.VaR95Pct)
}
