package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PortfolioStore persists portfolios and their risk profiles.
type PortfolioStore interface {
	GetByID(ctx context.Context, id string) (Portfolio, error)
	ListActive(ctx context.Context) ([]Portfolio, error)
	UpdateValue(ctx context.Context, id string, totalValue, cashBalance float64) error
}

// PositionStore persists positions.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	Close(ctx context.Context, id string, exitPrice float64) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpenByPortfolio(ctx context.Context, portfolioID string) ([]Position, error)
	FlagForReview(ctx context.Context, id string) error
}

// OrderStore persists submitted orders.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus, filledQty, avgPrice float64) error
	GetByClientID(ctx context.Context, clientID string) (Order, error)
	ListUnresolved(ctx context.Context, portfolioID string) ([]Order, error)
}

// TradeStore persists executed fills.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	ListByPortfolio(ctx context.Context, portfolioID string, opts ListOpts) ([]Trade, error)
}

// SnapshotStore persists append-only risk snapshots. Snapshots are immutable
// once written; pruning is handled by the archiver.
type SnapshotStore interface {
	Append(ctx context.Context, snap RiskSnapshot) error
	ListRecent(ctx context.Context, portfolioID string, limit int) ([]RiskSnapshot, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]RiskSnapshot, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExchangeCredentials is an encrypted API key pair for one (user, venue).
// The ciphertexts are opaque envelopes produced by the key manager.
type ExchangeCredentials struct {
	UserID       string
	Venue        string
	APIKeyEnc    []byte
	APISecretEnc []byte
	UpdatedAt    time.Time
}

// KeyStore persists encrypted exchange credentials.
type KeyStore interface {
	Upsert(ctx context.Context, creds ExchangeCredentials) error
	Get(ctx context.Context, userID, venue string) (ExchangeCredentials, error)
}
