package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/corvalis/riskbot/internal/domain"
)

// SnapshotArchiver moves risk snapshots older than the retention window out
// of the primary store and into cold storage. Each batch is serialised to
// JSONL and uploaded before its rows are deleted, so a failed upload never
// loses data; at worst the next run re-archives the same rows.
type SnapshotArchiver struct {
	writer    domain.BlobWriter
	snapshots domain.SnapshotStore
	retention time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

// ArchiverConfig configures the snapshot archiver.
type ArchiverConfig struct {
	// Retention is how long snapshots stay in the primary store.
	Retention time.Duration
	// BatchSize bounds how many rows are serialised per uploaded object.
	BatchSize int
}

// DefaultArchiverConfig keeps 90 days of snapshots hot and archives in
// batches of 5000.
func DefaultArchiverConfig() ArchiverConfig {
	return ArchiverConfig{
		Retention: 90 * 24 * time.Hour,
		BatchSize: 5000,
	}
}

// NewSnapshotArchiver creates a SnapshotArchiver.
func NewSnapshotArchiver(writer domain.BlobWriter, snapshots domain.SnapshotStore, cfg ArchiverConfig, logger *slog.Logger) *SnapshotArchiver {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultArchiverConfig().Retention
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultArchiverConfig().BatchSize
	}
	return &SnapshotArchiver{
		writer:    writer,
		snapshots: snapshots,
		retention: cfg.Retention,
		batchSize: cfg.BatchSize,
		logger:    logger.With(slog.String("component", "snapshot_archiver")),
		now:       time.Now,
	}
}

// ArchiveOld uploads and then deletes all snapshots older than the retention
// window. It returns the number of rows removed from the primary store.
func (a *SnapshotArchiver) ArchiveOld(ctx context.Context) (int, error) {
	cutoff := a.now().UTC().Add(-a.retention)
	total := 0

	for {
		snaps, err := a.snapshots.ListBefore(ctx, cutoff, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: list snapshots: %w", err)
		}
		if len(snaps) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(snaps)
		if err != nil {
			return total, fmt.Errorf("s3blob: marshal snapshots: %w", err)
		}

		path := archivePath(snaps[0].TakenAt, snaps[len(snaps)-1].TakenAt)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: upload %s: %w", path, err)
		}

		// Delete only what this batch uploaded. The nanosecond bump makes the
		// cutoff inclusive of the batch's newest row.
		batchCutoff := snaps[len(snaps)-1].TakenAt.Add(time.Nanosecond)
		deleted, err := a.snapshots.DeleteBefore(ctx, batchCutoff)
		if err != nil {
			return total, fmt.Errorf("s3blob: delete archived snapshots: %w", err)
		}
		total += int(deleted)

		a.logger.InfoContext(ctx, "snapshot batch archived",
			slog.String("path", path),
			slog.Int("rows", len(snaps)),
			slog.Int64("deleted", deleted))

		if len(snaps) < a.batchSize {
			return total, nil
		}
	}
}

// archivePath builds the object key for one batch, partitioned by the month
// of the oldest row and disambiguated by the batch's time range.
//
//	archive/risk_snapshots/2026-05/20260501T000000-20260512T083000.jsonl
func archivePath(oldest, newest time.Time) string {
	const stamp = "20060102T150405"
	return fmt.Sprintf("archive/risk_snapshots/%s/%s-%s.jsonl",
		oldest.UTC().Format("2006-01"),
		oldest.UTC().Format(stamp),
		newest.UTC().Format(stamp))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
