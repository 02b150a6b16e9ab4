package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvalis/riskbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, portfolio_id, symbol, venue, side, quantity,
	entry_price, current_price, stop_loss, take_profit, state, needs_review,
	opened_at, closed_at, exit_price, realized_pnl`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, state string

	err := row.Scan(
		&p.ID, &p.PortfolioID, &p.Symbol, &p.Venue, &side, &p.Quantity,
		&p.EntryPrice, &p.CurrentPrice, &p.StopLoss, &p.TakeProfit,
		&state, &p.NeedsReview,
		&p.OpenedAt, &p.ClosedAt, &p.ExitPrice, &p.RealizedPnL,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.State = domain.PositionState(state)
	return p, nil
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, portfolio_id, symbol, venue, side, quantity,
			entry_price, current_price, stop_loss, take_profit,
			state, needs_review, opened_at, closed_at, exit_price,
			realized_pnl, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.PortfolioID, p.Symbol, p.Venue, string(p.Side), p.Quantity,
		p.EntryPrice, p.CurrentPrice, p.StopLoss, p.TakeProfit,
		string(p.State), p.NeedsReview, p.OpenedAt, p.ClosedAt, p.ExitPrice,
		p.RealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			quantity      = $2,
			entry_price   = $3,
			current_price = $4,
			stop_loss     = $5,
			take_profit   = $6,
			state         = $7,
			needs_review  = $8,
			closed_at     = $9,
			exit_price    = $10,
			realized_pnl  = $11,
			updated_at    = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Quantity, p.EntryPrice, p.CurrentPrice,
		p.StopLoss, p.TakeProfit,
		string(p.State), p.NeedsReview,
		p.ClosedAt, p.ExitPrice, p.RealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Close marks a position closed with its exit price. Already closed rows are
// left untouched.
func (s *PositionStore) Close(ctx context.Context, id string, exitPrice float64) error {
	const query = `
		UPDATE positions SET
			state        = 'closed',
			exit_price   = $2,
			realized_pnl = realized_pnl + CASE
				WHEN side = 'long'  THEN ($2 - entry_price) * quantity
				ELSE (entry_price - $2) * quantity
			END,
			quantity   = 0,
			closed_at  = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND state <> 'closed'`

	tag, err := s.pool.Exec(ctx, query, id, exitPrice)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpenByPortfolio returns every open or partially closed position in the
// portfolio.
func (s *PositionStore) ListOpenByPortfolio(ctx context.Context, portfolioID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE portfolio_id = $1 AND state <> 'closed'
		 ORDER BY opened_at`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// FlagForReview marks a position for manual attention.
func (s *PositionStore) FlagForReview(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions SET needs_review = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: flag position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
