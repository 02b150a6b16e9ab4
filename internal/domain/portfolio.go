package domain

import "time"

// RiskTolerance is a coarse user preference applied to sizing defaults.
type RiskTolerance string

const (
	RiskToleranceConservative RiskTolerance = "conservative"
	RiskToleranceModerate     RiskTolerance = "moderate"
	RiskToleranceAggressive   RiskTolerance = "aggressive"
)

// RiskProfile holds the per-portfolio risk limits. It is updated only by
// explicit user action, never by the engine.
type RiskProfile struct {
	MaxPositionPct      float64
	MaxDailyLossPct     float64
	MaxTotalExposurePct float64
	DefaultStopPct      float64
	DefaultTakeProfit   float64
	MaxOpenPositions    int
	RiskTolerance       RiskTolerance
}

// Portfolio groups positions and cash for a single user account.
type Portfolio struct {
	ID                 string
	UserID             string
	Name               string
	CashBalance        float64
	TotalValue         float64
	RiskProfile        RiskProfile
	TargetAllocation   map[string]float64 // symbol -> weight, sums to ~1.0 when non-empty
	RebalanceThreshold float64
	AutoRebalance      bool
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AvailableBalance is the cash usable for new orders.
func (p Portfolio) AvailableBalance() float64 {
	return p.CashBalance
}
