package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvalis/riskbot/internal/domain"
)

type countingArchiver struct {
	calls atomic.Int64
}

func (a *countingArchiver) ArchiveOld(context.Context) (int, error) {
	a.calls.Add(1)
	return 0, nil
}

func TestScheduler_RunsLoopsUntilCancelled(t *testing.T) {
	f := newEngineFixture(
		[]domain.Portfolio{activePortfolio("pf-1", 1000)},
		[]domain.Position{openLong("pos-1", "pf-1", "BTC/USDT", 1, 100, nil)},
		map[string]float64{"BTC/USDT": 100},
	)

	archiver := &countingArchiver{}
	cfg := SchedulerConfig{
		FastInterval:         10 * time.Millisecond,
		PortfolioInterval:    15 * time.Millisecond,
		ArchiveInterval:      20 * time.Millisecond,
		TrackerSweepInterval: 10 * time.Millisecond,
	}
	sched := NewScheduler(f.engine, archiver, cfg, f.engine.logger)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	err := sched.Run(ctx)
	require.NoError(t, err)

	// The fast loop ran at least the immediate cycle plus ticks, each of
	// which appends a snapshot; the archiver ticked at least once.
	assert.GreaterOrEqual(t, f.snapshots.count(), 2)
	assert.GreaterOrEqual(t, archiver.calls.Load(), int64(1))
}
