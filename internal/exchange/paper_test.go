package exchange

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvalis/riskbot/internal/domain"
)

type stubCache struct {
	prices map[string]float64
}

func (s *stubCache) SetPrice(_ context.Context, symbol string, price float64, _ time.Time) error {
	s.prices[symbol] = price
	return nil
}

func (s *stubCache) GetPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	p, ok := s.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Now(), nil
}

func (s *stubCache) GetPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			out[sym] = p
		}
	}
	return out, nil
}

type recordingLimiter struct {
	key    string
	limit  int
	window time.Duration
	calls  int
}

func (r *recordingLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return true, nil
}

func (r *recordingLimiter) Wait(_ context.Context, key string, limit int, window time.Duration) error {
	r.key = key
	r.limit = limit
	r.window = window
	r.calls++
	return nil
}

func newGateway(slippageBps float64) *PaperGateway {
	cache := &stubCache{prices: map[string]float64{"BTC/USDT": 50000}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPaperGateway(cache, nil, PaperConfig{SlippageBps: slippageBps}, logger)
}

func marketBuy(clientID string, qty float64) domain.OrderRequest {
	return domain.OrderRequest{
		ClientID: clientID,
		Symbol:   "BTC/USDT",
		Venue:    "paper",
		Side:     domain.OrderSideBuy,
		Type:     domain.OrderTypeMarket,
		Quantity: qty,
	}
}

func TestPaperGateway_MarketOrderFillsAtCachedPrice(t *testing.T) {
	g := newGateway(0)

	res, err := g.SubmitOrder(context.Background(), marketBuy("c-1", 0.5))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)
	assert.Equal(t, 0.5, res.FilledQty)
	assert.Equal(t, 50000.0, res.AvgPrice)
	assert.NotEmpty(t, res.OrderID)
}

func TestPaperGateway_SlippageWorksAgainstTheTaker(t *testing.T) {
	g := newGateway(10) // 10 bps

	buy, err := g.SubmitOrder(context.Background(), marketBuy("c-buy", 1))
	require.NoError(t, err)
	assert.InDelta(t, 50050.0, buy.AvgPrice, 1e-9)

	sellReq := marketBuy("c-sell", 1)
	sellReq.Side = domain.OrderSideSell
	sell, err := g.SubmitOrder(context.Background(), sellReq)
	require.NoError(t, err)
	assert.InDelta(t, 49950.0, sell.AvgPrice, 1e-9)
}

func TestPaperGateway_ClientIDIsIdempotent(t *testing.T) {
	g := newGateway(0)

	first, err := g.SubmitOrder(context.Background(), marketBuy("c-dup", 1))
	require.NoError(t, err)
	second, err := g.SubmitOrder(context.Background(), marketBuy("c-dup", 1))
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)

	status, err := g.GetOrderStatus(context.Background(), first.OrderID, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, status.Status)
}

func TestPaperGateway_MissingPriceRejectsOrder(t *testing.T) {
	g := newGateway(0)

	req := marketBuy("c-miss", 1)
	req.Symbol = "DOGE/USDT"
	res, err := g.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRejected, res.Status)
}

func TestPaperGateway_CancelRestingLimitOrder(t *testing.T) {
	g := newGateway(0)

	price := 48000.0
	res, err := g.SubmitOrder(context.Background(), domain.OrderRequest{
		ClientID: "c-limit",
		Symbol:   "BTC/USDT",
		Side:     domain.OrderSideBuy,
		Type:     domain.OrderTypeLimit,
		Quantity: 1,
		Price:    &price,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusOpen, res.Status)

	cancelled, err := g.CancelOrder(context.Background(), res.OrderID, "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, cancelled)

	status, err := g.GetOrderStatus(context.Background(), res.OrderID, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, status.Status)
}

func TestPaperGateway_CancelAfterFillReturnsFalse(t *testing.T) {
	g := newGateway(0)

	res, err := g.SubmitOrder(context.Background(), marketBuy("c-race", 1))
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFilled, res.Status)

	cancelled, err := g.CancelOrder(context.Background(), res.OrderID, "BTC/USDT")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestPaperGateway_RejectsNonPositiveQuantity(t *testing.T) {
	g := newGateway(0)

	_, err := g.SubmitOrder(context.Background(), marketBuy("c-bad", 0))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPaperGateway_ThrottleUsesConfiguredLimit(t *testing.T) {
	cache := &stubCache{prices: map[string]float64{"BTC/USDT": 50000}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := &recordingLimiter{}
	g := NewPaperGateway(cache, limiter, PaperConfig{
		Venue:      "binance",
		RateLimit:  20,
		RateWindow: 5 * time.Second,
	}, logger)

	_, err := g.SubmitOrder(context.Background(), marketBuy("c-throttle", 1))
	require.NoError(t, err)

	assert.Equal(t, 1, limiter.calls)
	assert.Equal(t, "gateway:binance", limiter.key)
	assert.Equal(t, 20, limiter.limit)
	assert.Equal(t, 5*time.Second, limiter.window)
}

func TestPaperGateway_ZeroRateLimitSkipsLimiter(t *testing.T) {
	cache := &stubCache{prices: map[string]float64{"BTC/USDT": 50000}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := &recordingLimiter{}
	g := NewPaperGateway(cache, limiter, PaperConfig{RateLimit: 0}, logger)

	_, err := g.SubmitOrder(context.Background(), marketBuy("c-nolimit", 1))
	require.NoError(t, err)
	assert.Zero(t, limiter.calls)
}
