package domain

import "time"

// RiskLevel is the coarse classification of total portfolio risk.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// PositionRisk is the contribution of a single position to portfolio risk.
type PositionRisk struct {
	PositionID  string
	Symbol      string
	RiskPct     float64 // share of portfolio value at risk to the stop
	PositionPct float64 // share of portfolio value held in the position
}

// RiskAssessment is the full output of a portfolio risk evaluation.
type RiskAssessment struct {
	PortfolioID         string
	TotalRiskPct        float64
	RiskLevel           RiskLevel
	PerPositionRisk     []PositionRisk
	SectorConcentration map[string]float64 // sector -> pct of portfolio value
	VaR95Pct            float64            // loss-positive, pct of portfolio value
	ExpectedShortfall   float64            // loss-positive, pct of portfolio value
	MaxDrawdown         float64            // fraction, from snapshot history
	Warnings            []string
	Recommendations     []string
}

// RiskSnapshot is an immutable, append-only record of a risk assessment.
type RiskSnapshot struct {
	ID                  string
	PortfolioID         string
	TakenAt             time.Time
	TotalValue          float64
	TotalRiskPct        float64
	RiskLevel           RiskLevel
	SectorConcentration map[string]float64
	VaR95Pct            float64
	ExpectedShortfall   float64
	MaxDrawdown         float64
}

// SkippedPosition records a position excluded from a cycle and why.
type SkippedPosition struct {
	PositionID string
	Symbol     string
	Reason     string
}

// CycleReport summarises one evaluation cycle across portfolios.
type CycleReport struct {
	StartedAt           time.Time
	Duration            time.Duration
	PortfoliosEvaluated int
	PositionsEvaluated  int
	IntentsEmitted      int
	OrdersSubmitted     int
	Skipped             []SkippedPosition
	Warnings            []string
}
