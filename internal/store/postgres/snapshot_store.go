package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvalis/riskbot/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Snapshots
// are append-only; rows are removed only by the archival path.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotSelectCols = `id, portfolio_id, taken_at, total_value,
	total_risk_pct, risk_level, sector_concentration, var95_pct,
	expected_shortfall, max_drawdown`

func scanSnapshotRows(rows pgx.Rows) ([]domain.RiskSnapshot, error) {
	var snaps []domain.RiskSnapshot
	for rows.Next() {
		var s domain.RiskSnapshot
		var level string
		if err := rows.Scan(
			&s.ID, &s.PortfolioID, &s.TakenAt, &s.TotalValue,
			&s.TotalRiskPct, &level, &s.SectorConcentration,
			&s.VaR95Pct, &s.ExpectedShortfall, &s.MaxDrawdown,
		); err != nil {
			return nil, err
		}
		s.RiskLevel = domain.RiskLevel(level)
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// Append inserts an immutable risk snapshot.
func (s *SnapshotStore) Append(ctx context.Context, snap domain.RiskSnapshot) error {
	const query = `
		INSERT INTO risk_snapshots (
			id, portfolio_id, taken_at, total_value, total_risk_pct,
			risk_level, sector_concentration, var95_pct,
			expected_shortfall, max_drawdown
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		snap.ID, snap.PortfolioID, snap.TakenAt, snap.TotalValue,
		snap.TotalRiskPct, string(snap.RiskLevel), snap.SectorConcentration,
		snap.VaR95Pct, snap.ExpectedShortfall, snap.MaxDrawdown,
	)
	if err != nil {
		return fmt.Errorf("postgres: append snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// ListRecent returns the newest snapshots for a portfolio, newest first.
func (s *SnapshotStore) ListRecent(ctx context.Context, portfolioID string, limit int) ([]domain.RiskSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotSelectCols+` FROM risk_snapshots
		 WHERE portfolio_id = $1
		 ORDER BY taken_at DESC LIMIT $2`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent snapshots: %w", err)
	}
	defer rows.Close()

	snaps, err := scanSnapshotRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan snapshots: %w", err)
	}
	return snaps, nil
}

// ListBefore returns snapshots taken before the cutoff, oldest first, for
// archival.
func (s *SnapshotStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.RiskSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotSelectCols+` FROM risk_snapshots
		 WHERE taken_at < $1
		 ORDER BY taken_at LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots before cutoff: %w", err)
	}
	defer rows.Close()

	snaps, err := scanSnapshotRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan snapshots: %w", err)
	}
	return snaps, nil
}

// DeleteBefore removes snapshots older than the cutoff and returns how many
// rows were deleted.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM risk_snapshots WHERE taken_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before cutoff: %w", err)
	}
	return tag.RowsAffected(), nil
}
