package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvalis/riskbot/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, client_id, exchange_id, portfolio_id, position_id,
	symbol, venue, side, order_type, quantity, price, status, filled_qty,
	avg_price, reason, created_at, updated_at`

func scanOrderRow(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var side, orderType, status string

	err := row.Scan(
		&o.ID, &o.ClientID, &o.ExchangeID, &o.PortfolioID, &o.PositionID,
		&o.Symbol, &o.Venue, &side, &orderType, &o.Quantity, &o.Price,
		&status, &o.FilledQty, &o.AvgPrice, &o.Reason,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// Create inserts a new order record.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, client_id, exchange_id, portfolio_id, position_id,
			symbol, venue, side, order_type, quantity, price,
			status, filled_qty, avg_price, reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.ClientID, o.ExchangeID, o.PortfolioID, o.PositionID,
		o.Symbol, o.Venue, string(o.Side), string(o.Type), o.Quantity, o.Price,
		string(o.Status), o.FilledQty, o.AvgPrice, o.Reason,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus records the order's latest lifecycle state and fill totals.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, filledQty, avgPrice float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET
			status     = $2,
			filled_qty = $3,
			avg_price  = $4,
			updated_at = NOW()
		 WHERE id = $1`, id, string(status), filledQty, avgPrice)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByClientID retrieves an order by its idempotency key.
func (s *OrderStore) GetByClientID(ctx context.Context, clientID string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE client_id = $1`, clientID)

	o, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order by client id: %w", err)
	}
	return o, nil
}

// ListUnresolved returns orders that have not reached a terminal state.
func (s *OrderStore) ListUnresolved(ctx context.Context, portfolioID string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE portfolio_id = $1
		   AND status NOT IN ('filled', 'cancelled', 'rejected')
		 ORDER BY created_at`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unresolved orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
