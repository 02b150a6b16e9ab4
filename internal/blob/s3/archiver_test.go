package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvalis/riskbot/internal/domain"
)

type capturingWriter struct {
	paths    []string
	payloads [][]byte
	err      error
}

func (w *capturingWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.paths = append(w.paths, path)
	w.payloads = append(w.payloads, buf)
	return nil
}

type memSnapshots struct {
	snaps []domain.RiskSnapshot
}

func (m *memSnapshots) Append(_ context.Context, s domain.RiskSnapshot) error {
	m.snaps = append(m.snaps, s)
	return nil
}

func (m *memSnapshots) ListRecent(_ context.Context, portfolioID string, limit int) ([]domain.RiskSnapshot, error) {
	return nil, nil
}

func (m *memSnapshots) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.RiskSnapshot, error) {
	var out []domain.RiskSnapshot
	for _, s := range m.snaps {
		if s.TakenAt.Before(cutoff) {
			out = append(out, s)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memSnapshots) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []domain.RiskSnapshot
	var deleted int64
	for _, s := range m.snaps {
		if s.TakenAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	m.snaps = kept
	return deleted, nil
}

func snapAt(id string, takenAt time.Time) domain.RiskSnapshot {
	return domain.RiskSnapshot{
		ID:          id,
		PortfolioID: "pf-1",
		TakenAt:     takenAt,
		TotalValue:  1000,
	}
}

func testArchiver(store *memSnapshots, writer *capturingWriter, batch int, now time.Time) *SnapshotArchiver {
	a := NewSnapshotArchiver(writer, store,
		ArchiverConfig{Retention: 30 * 24 * time.Hour, BatchSize: batch},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return now }
	return a
}

func TestSnapshotArchiver_MovesOldRowsToBlob(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	store := &memSnapshots{snaps: []domain.RiskSnapshot{
		snapAt("old-1", now.Add(-60*24*time.Hour)),
		snapAt("old-2", now.Add(-40*24*time.Hour)),
		snapAt("fresh", now.Add(-time.Hour)),
	}}
	writer := &capturingWriter{}

	n, err := testArchiver(store, writer, 100, now).ArchiveOld(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Fresh row survives.
	require.Len(t, store.snaps, 1)
	assert.Equal(t, "fresh", store.snaps[0].ID)

	// One JSONL object with two lines.
	require.Len(t, writer.payloads, 1)
	assert.Contains(t, writer.paths[0], "archive/risk_snapshots/2026-07/")
	scanner := bufio.NewScanner(bytes.NewReader(writer.payloads[0]))
	lines := 0
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestSnapshotArchiver_BatchesLargeBacklogs(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	store := &memSnapshots{}
	for i := 0; i < 5; i++ {
		store.snaps = append(store.snaps,
			snapAt("s", now.Add(-50*24*time.Hour).Add(time.Duration(i)*time.Hour)))
	}
	writer := &capturingWriter{}

	n, err := testArchiver(store, writer, 2, now).ArchiveOld(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, writer.paths, 3) // 2 + 2 + 1
	assert.Empty(t, store.snaps)
}

func TestSnapshotArchiver_UploadFailureKeepsRows(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	store := &memSnapshots{snaps: []domain.RiskSnapshot{
		snapAt("old", now.Add(-60*24*time.Hour)),
	}}
	writer := &capturingWriter{err: assert.AnError}

	n, err := testArchiver(store, writer, 100, now).ArchiveOld(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Len(t, store.snaps, 1)
}

func TestSnapshotArchiver_NothingToArchive(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	store := &memSnapshots{snaps: []domain.RiskSnapshot{
		snapAt("fresh", now.Add(-time.Hour)),
	}}
	writer := &capturingWriter{}

	n, err := testArchiver(store, writer, 100, now).ArchiveOld(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.paths)
}
