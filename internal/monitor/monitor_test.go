package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvalis/riskbot/internal/domain"
)

func openLong(entry float64, stop, target *float64) domain.Position {
	return domain.Position{
		ID:          "pos-1",
		PortfolioID: "pf-1",
		Symbol:      "BTC/USDT",
		Venue:       "binance",
		Side:        domain.SideLong,
		Quantity:    0.5,
		EntryPrice:  entry,
		StopLoss:    stop,
		TakeProfit:  target,
		State:       domain.PositionStateOpen,
	}
}

func ptr(f float64) *float64 { return &f }

var now = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func TestEvaluate_StopBreachEmitsFullExit(t *testing.T) {
	pos := openLong(100, ptr(95), ptr(120))

	out, err := Evaluate(pos, 94.5, now, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, out.Intents, 1)

	got := out.Intents[0]
	assert.Equal(t, domain.IntentExitStopLoss, got.Kind)
	assert.Equal(t, domain.OrderSideSell, got.Side)
	assert.Equal(t, pos.Quantity, got.Quantity)
	assert.Equal(t, 94.5, got.TriggerPrice)
	assert.Nil(t, out.NewStop)
}

func TestEvaluate_StopBreachShort(t *testing.T) {
	pos := openLong(100, ptr(105), nil)
	pos.Side = domain.SideShort

	out, err := Evaluate(pos, 106, now, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, out.Intents, 1)
	assert.Equal(t, domain.IntentExitStopLoss, out.Intents[0].Kind)
	assert.Equal(t, domain.OrderSideBuy, out.Intents[0].Side)
}

func TestEvaluate_TakeProfitFullExit(t *testing.T) {
	pos := openLong(100, ptr(95), ptr(120))

	out, err := Evaluate(pos, 121, now, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, out.Intents, 1)
	assert.Equal(t, domain.IntentExitTakeProfit, out.Intents[0].Kind)
	assert.Equal(t, pos.Quantity, out.Intents[0].Quantity)
}

func TestEvaluate_TakeProfitLadderedPartial(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialExitFraction = 0.5
	pos := openLong(100, nil, ptr(120))

	out, err := Evaluate(pos, 121, now, cfg)
	require.NoError(t, err)
	require.Len(t, out.Intents, 1)
	assert.InDelta(t, pos.Quantity*0.5, out.Intents[0].Quantity, 1e-12)

	// The remainder exits in full once the position is partially closed.
	pos.State = domain.PositionStatePartiallyClosed
	pos.Quantity *= 0.5
	out, err = Evaluate(pos, 121, now, cfg)
	require.NoError(t, err)
	require.Len(t, out.Intents, 1)
	assert.Equal(t, pos.Quantity, out.Intents[0].Quantity)
}

func TestEvaluate_StopBeatsTarget(t *testing.T) {
	// Contradictory levels: the stop check runs first.
	pos := openLong(100, ptr(110), ptr(105))

	out, err := Evaluate(pos, 107, now, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, out.Intents, 1)
	assert.Equal(t, domain.IntentExitStopLoss, out.Intents[0].Kind)
}

func TestEvaluate_LargeLossIsAdvisoryOnly(t *testing.T) {
	pos := openLong(100, nil, nil)

	out, err := Evaluate(pos, 85, now, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, out.Intents, 1)
	assert.Equal(t, domain.IntentReviewPosition, out.Intents[0].Kind)
	assert.True(t, out.Intents[0].Kind.Advisory())
	assert.Nil(t, out.NewStop)
}

func TestEvaluate_TrailingStopTightens(t *testing.T) {
	pos := openLong(100, ptr(95), nil)

	out, err := Evaluate(pos, 112, now, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, out.Intents)
	require.NotNil(t, out.NewStop)
	assert.InDelta(t, 102.0, *out.NewStop, 1e-9)
}

func TestEvaluate_ClosedPositionIsInert(t *testing.T) {
	pos := openLong(100, ptr(95), ptr(120))
	pos.State = domain.PositionStateClosed

	out, err := Evaluate(pos, 90, now, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, out.Intents)
	assert.Nil(t, out.NewStop)
}

func TestEvaluate_RejectsBadInput(t *testing.T) {
	pos := openLong(100, nil, nil)

	_, err := Evaluate(pos, 0, now, DefaultConfig())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	pos.State = "corrupted"
	_, err = Evaluate(pos, 100, now, DefaultConfig())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	pos.State = domain.PositionStateOpen
	pos.Quantity = 0
	_, err = Evaluate(pos, 100, now, DefaultConfig())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEvaluate_QuietPositionDoesNothing(t *testing.T) {
	pos := openLong(100, ptr(95), ptr(120))

	out, err := Evaluate(pos, 103, now, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, out.Intents)
	assert.Nil(t, out.NewStop)
}
