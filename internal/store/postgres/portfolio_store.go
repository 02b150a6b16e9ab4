package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvalis/riskbot/internal/domain"
)

// PortfolioStore implements domain.PortfolioStore using PostgreSQL.
type PortfolioStore struct {
	pool *pgxpool.Pool
}

// NewPortfolioStore creates a PortfolioStore backed by the given pool.
func NewPortfolioStore(pool *pgxpool.Pool) *PortfolioStore {
	return &PortfolioStore{pool: pool}
}

const portfolioSelectCols = `id, user_id, name, cash_balance, total_value,
	max_position_pct, max_daily_loss_pct, max_total_exposure_pct,
	default_stop_pct, default_take_profit, max_open_positions, risk_tolerance,
	target_allocation, rebalance_threshold, auto_rebalance, active,
	created_at, updated_at`

func scanPortfolioRow(row pgx.Row) (domain.Portfolio, error) {
	var p domain.Portfolio
	var tolerance string
	var allocation map[string]float64

	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.CashBalance, &p.TotalValue,
		&p.RiskProfile.MaxPositionPct, &p.RiskProfile.MaxDailyLossPct,
		&p.RiskProfile.MaxTotalExposurePct, &p.RiskProfile.DefaultStopPct,
		&p.RiskProfile.DefaultTakeProfit, &p.RiskProfile.MaxOpenPositions,
		&tolerance,
		&allocation, &p.RebalanceThreshold, &p.AutoRebalance, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Portfolio{}, err
	}
	p.RiskProfile.RiskTolerance = domain.RiskTolerance(tolerance)
	p.TargetAllocation = allocation
	return p, nil
}

// GetByID retrieves a single portfolio by its ID.
func (s *PortfolioStore) GetByID(ctx context.Context, id string) (domain.Portfolio, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+portfolioSelectCols+` FROM portfolios WHERE id = $1`, id)

	p, err := scanPortfolioRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Portfolio{}, domain.ErrNotFound
		}
		return domain.Portfolio{}, fmt.Errorf("postgres: get portfolio %s: %w", id, err)
	}
	return p, nil
}

// ListActive returns all active portfolios.
func (s *PortfolioStore) ListActive(ctx context.Context) ([]domain.Portfolio, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+portfolioSelectCols+` FROM portfolios
		 WHERE active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolioRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// UpdateValue refreshes the marked-to-market totals of a portfolio.
func (s *PortfolioStore) UpdateValue(ctx context.Context, id string, totalValue, cashBalance float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE portfolios SET
			total_value  = $2,
			cash_balance = $3,
			updated_at   = NOW()
		 WHERE id = $1`, id, totalValue, cashBalance)
	if err != nil {
		return fmt.Errorf("postgres: update portfolio value %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
