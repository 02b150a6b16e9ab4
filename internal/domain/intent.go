package domain

import (
	"fmt"
	"math"
	"time"
)

// IntentKind classifies the action an intent requests.
type IntentKind string

const (
	IntentExitStopLoss   IntentKind = "exit_stop_loss"
	IntentExitTakeProfit IntentKind = "exit_take_profit"
	IntentRebalance      IntentKind = "rebalance"
	IntentReduceRisk     IntentKind = "reduce_risk"
	// IntentReviewPosition is advisory only; it never produces an order.
	IntentReviewPosition IntentKind = "review_position"
)

// Advisory reports whether the intent kind is informational and must not be
// turned into an order.
func (k IntentKind) Advisory() bool {
	return k == IntentReviewPosition
}

// Intent is an internal, not-yet-executed decision to act. Intents are
// produced per evaluation cycle by the monitor, risk aggregator, and
// rebalancing planner, and consumed by the execution coordinator.
type Intent struct {
	Kind         IntentKind
	PortfolioID  string
	PositionID   string // empty for symbol-level rebalance intents
	Symbol       string
	Venue        string
	Side         OrderSide
	Quantity     float64
	TriggerPrice float64
	Reason       string
	CreatedAt    time.Time
}

// dedupGrid is the geometric price-grid ratio used for dedup keys. Two
// triggers within the same 1% price band map to the same bucket, so
// re-evaluating an unresolved breach never emits a second order.
const dedupGrid = 1.01

// DedupKey identifies the intent for idempotent execution: the same position,
// the same kind of action, triggered in the same price bucket.
func (i Intent) DedupKey() string {
	scope := i.PositionID
	if scope == "" {
		scope = i.PortfolioID + ":" + i.Symbol
	}
	return fmt.Sprintf("%s|%s|%d", scope, i.Kind, priceBucket(i.TriggerPrice))
}

func priceBucket(price float64) int64 {
	if price <= 0 {
		return 0
	}
	return int64(math.Floor(math.Log(price) / math.Log(dedupGrid)))
}
