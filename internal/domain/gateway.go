package domain

import (
	"context"
	"io"
	"time"
)

// ExchangeGateway submits and manages orders at a trading venue. SubmitOrder
// must honour the client-supplied request ID for idempotent retry: submitting
// the same OrderRequest.ClientID twice returns the original order.
type ExchangeGateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID, symbol string) (bool, error)
	GetOrderStatus(ctx context.Context, orderID, symbol string) (OrderResult, error)
}

// PriceFeed provides the current price per (symbol, venue). Implementations
// return ErrStalePrice when the quote is missing or older than their
// staleness bound.
type PriceFeed interface {
	GetCurrentPrice(ctx context.Context, symbol, venue string) (float64, time.Time, error)
}

// PriceCache stores latest quotes keyed by symbol.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// TechnicalAnalysis supplies volatility inputs for stop calculation as a pure
// provider; the engine never computes indicators itself.
type TechnicalAnalysis interface {
	ATR(ctx context.Context, symbol, venue string, period int) (float64, error)
}

// RateLimiter throttles calls to external venues.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides per-portfolio mutual exclusion across concurrent
// cycles. Acquire returns ErrLockHeld when another holder owns the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter uploads a payload to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
