package risk

import (
	"math/rand"

	"github.com/corvalis/riskbot/internal/domain"
)

// VaRConfig tunes the Monte Carlo tail-risk simulation.
type VaRConfig struct {
	Trials     int
	Confidence float64            // e.g. 0.95
	DefaultVol float64            // daily volatility fraction, e.g. 0.02
	AssetVol   map[string]float64 // per-symbol overrides
}

// DefaultVaRConfig returns the standard simulation parameters: 1000 trials at
// 95% confidence with 2% daily volatility.
func DefaultVaRConfig() VaRConfig {
	return VaRConfig{
		Trials:     1000,
		Confidence: 0.95,
		DefaultVol: 0.02,
	}
}

// TailRisk holds the simulation output in loss-positive convention: a VaR of
// 3.2 means a 3.2% loss at the configured confidence level.
type TailRisk struct {
	VaR95Pct          float64
	ExpectedShortfall float64
}

// MonteCarloVaR estimates portfolio Value-at-Risk and Expected Shortfall by
// simulating daily portfolio returns. Each trial draws a normal return per
// position (mean 0, per-asset volatility) and sums them weighted by position
// value. The rng is injected so tests can seed it for reproducible output.
func MonteCarloVaR(positions []domain.Position, totalValue float64, cfg VaRConfig, rng *rand.Rand) TailRisk {
	if totalValue <= 0 || len(positions) == 0 || cfg.Trials <= 0 {
		return TailRisk{}
	}

	type weighted struct {
		weight float64
		vol    float64
	}
	assets := make([]weighted, 0, len(positions))
	for _, pos := range positions {
		if !pos.IsOpen() {
			continue
		}
		vol := cfg.DefaultVol
		if v, ok := cfg.AssetVol[pos.Symbol]; ok && v > 0 {
			vol = v
		}
		assets = append(assets, weighted{
			weight: pos.Value() / totalValue,
			vol:    vol,
		})
	}
	if len(assets) == 0 {
		return TailRisk{}
	}

	returns := make([]float64, cfg.Trials)
	for i := 0; i < cfg.Trials; i++ {
		var r float64
		for _, a := range assets {
			r += a.weight * rng.NormFloat64() * a.vol
		}
		returns[i] = r
	}

	cutoff := percentile(returns, (1-cfg.Confidence)*100)

	var tailSum float64
	var tailN int
	for _, r := range returns {
		if r <= cutoff {
			tailSum += r
			tailN++
		}
	}
	es := cutoff
	if tailN > 0 {
		es = tailSum / float64(tailN)
	}

	// Loss-positive convention.
	return TailRisk{
		VaR95Pct:          -cutoff * 100,
		ExpectedShortfall: -es * 100,
	}
}
