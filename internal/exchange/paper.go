// Package exchange holds gateway implementations for trading venues.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvalis/riskbot/internal/crypto"
	"github.com/corvalis/riskbot/internal/domain"
)

// PaperGateway is an in-process exchange used for dry runs and development.
// Market orders fill immediately at the current cached price with a
// configurable slippage. It honours ClientID idempotency the same way a real
// venue does: resubmitting a ClientID returns the original order.
type PaperGateway struct {
	prices      domain.PriceCache
	limiter     domain.RateLimiter
	venue       string
	slippageBps float64
	rateLimit   int
	rateWindow  time.Duration
	signer      *crypto.RequestSigner
	logger      *slog.Logger

	mu       sync.Mutex
	orders   map[string]domain.OrderResult // by exchange order ID
	byClient map[string]string             // client ID -> exchange order ID
}

// PaperConfig configures the paper gateway. RateLimit requests per RateWindow
// are admitted through the limiter; a non-positive RateLimit disables
// throttling.
type PaperConfig struct {
	Venue       string
	SlippageBps float64
	RateLimit   int
	RateWindow  time.Duration
}

// NewPaperGateway creates a paper gateway that fills against the price cache.
// The limiter may be nil, in which case calls are not throttled.
func NewPaperGateway(prices domain.PriceCache, limiter domain.RateLimiter, cfg PaperConfig, logger *slog.Logger) *PaperGateway {
	if cfg.Venue == "" {
		cfg.Venue = "paper"
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Second
	}
	return &PaperGateway{
		prices:      prices,
		limiter:     limiter,
		venue:       cfg.Venue,
		slippageBps: cfg.SlippageBps,
		rateLimit:   cfg.RateLimit,
		rateWindow:  cfg.RateWindow,
		logger:      logger.With(slog.String("component", "paper_gateway")),
		orders:      make(map[string]domain.OrderResult),
		byClient:    make(map[string]string),
	}
}

// UseSigner attaches a request signer. The paper venue signs its simulated
// submissions the same way a live adapter signs its REST calls, so imported
// credentials are exercised end to end before any live wiring exists.
func (g *PaperGateway) UseSigner(s *crypto.RequestSigner) {
	g.signer = s
	g.logger.Info("request signer attached", slog.String("signer", s.String()))
}

// SubmitOrder fills a market order at the cached price. Limit and stop orders
// rest as open; the paper venue has no matching engine to trigger them.
func (g *PaperGateway) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := g.throttle(ctx); err != nil {
		return domain.OrderResult{}, err
	}
	g.sign(ctx, "POST", "/api/v1/orders", req.ClientID)

	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.byClient[req.ClientID]; ok {
		return g.orders[id], nil
	}

	if req.Quantity <= 0 {
		return domain.OrderResult{}, fmt.Errorf("exchange: submit %s: %w", req.Symbol, domain.ErrInvalidInput)
	}

	result := domain.OrderResult{OrderID: uuid.New().String()}

	switch req.Type {
	case domain.OrderTypeMarket:
		price, _, err := g.prices.GetPrice(ctx, req.Symbol)
		if err != nil {
			result.Status = domain.OrderStatusRejected
			result.Message = fmt.Sprintf("no price for %s", req.Symbol)
		} else {
			result.Status = domain.OrderStatusFilled
			result.FilledQty = req.Quantity
			result.AvgPrice = g.fillPrice(price, req.Side)
		}
	default:
		result.Status = domain.OrderStatusOpen
	}

	g.orders[result.OrderID] = result
	g.byClient[req.ClientID] = result.OrderID

	g.logger.InfoContext(ctx, "paper order",
		slog.String("order_id", result.OrderID),
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.Float64("quantity", req.Quantity),
		slog.String("status", string(result.Status)))

	return result, nil
}

// CancelOrder cancels a resting order. It returns false when the order has
// already resolved, which is how a real venue reports a lost cancel race.
func (g *PaperGateway) CancelOrder(ctx context.Context, orderID, symbol string) (bool, error) {
	if err := g.throttle(ctx); err != nil {
		return false, err
	}
	g.sign(ctx, "DELETE", "/api/v1/orders/"+orderID, "")

	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok {
		return false, fmt.Errorf("exchange: cancel %s: %w", orderID, domain.ErrNotFound)
	}
	if o.Status.Resolved() {
		return false, nil
	}
	o.Status = domain.OrderStatusCancelled
	g.orders[orderID] = o
	return true, nil
}

// GetOrderStatus returns the current state of an order.
func (g *PaperGateway) GetOrderStatus(ctx context.Context, orderID, symbol string) (domain.OrderResult, error) {
	if err := g.throttle(ctx); err != nil {
		return domain.OrderResult{}, err
	}
	g.sign(ctx, "GET", "/api/v1/orders/"+orderID, "")

	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("exchange: status %s: %w", orderID, domain.ErrNotFound)
	}
	return o, nil
}

func (g *PaperGateway) throttle(ctx context.Context) error {
	if g.limiter == nil || g.rateLimit <= 0 {
		return nil
	}
	return g.limiter.Wait(ctx, "gateway:"+g.venue, g.rateLimit, g.rateWindow)
}

// sign builds the authentication headers a live request would carry and
// records the signature. Unsigned gateways skip this entirely.
func (g *PaperGateway) sign(ctx context.Context, method, path, body string) map[string]string {
	if g.signer == nil {
		return nil
	}
	headers := g.signer.Headers(method, path, body)
	g.logger.DebugContext(ctx, "request signed",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("signature", headers["X-RB-SIGNATURE"][:8]))
	return headers
}

func (g *PaperGateway) fillPrice(mark float64, side domain.OrderSide) float64 {
	slip := mark * g.slippageBps / 10_000
	if side == domain.OrderSideBuy {
		return mark + slip
	}
	return mark - slip
}

// FillOpenOrder resolves a resting order at the given price. Test and demo
// harnesses use it to simulate a limit order crossing.
func (g *PaperGateway) FillOpenOrder(orderID string, quantity, price float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok {
		return fmt.Errorf("exchange: fill %s: %w", orderID, domain.ErrNotFound)
	}
	if o.Status.Resolved() {
		return fmt.Errorf("exchange: fill %s: %w", orderID, domain.ErrConcurrentModification)
	}
	o.Status = domain.OrderStatusFilled
	o.FilledQty = quantity
	o.AvgPrice = price
	g.orders[orderID] = o
	return nil
}

// Compile-time interface check.
var _ domain.ExchangeGateway = (*PaperGateway)(nil)
