package notify

// Event types emitted by the engine. Operators can restrict delivery to a
// subset of these via the notifier's event filter.
const (
	EventStopLossTriggered = "stop_loss_triggered"
	EventTakeProfit        = "take_profit"
	EventExecutionFailed   = "execution_failed"
	EventPositionReview    = "position_review"
	EventRiskWarning       = "risk_warning"
	EventRebalance         = "rebalance"
)
