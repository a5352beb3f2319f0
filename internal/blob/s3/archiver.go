package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

// Narrow store interfaces: the archiver only needs the time-ranged read and
// prune methods, not the full tick stores.

// IndexTickSource provides read and prune access to aged index ticks.
type IndexTickSource interface {
	TicksBefore(ctx context.Context, cutoffMinute int64, limit int) ([]domain.IndexTick, error)
	DeleteTicksBefore(ctx context.Context, cutoffMinute int64) (int64, error)
}

// QuoteTickSource provides read and prune access to aged quote ticks.
type QuoteTickSource interface {
	Before(ctx context.Context, cutoffMinute int64, limit int) ([]domain.QuoteTick, error)
	DeleteBefore(ctx context.Context, cutoffMinute int64) (int64, error)
}

// Archiver moves aged per-minute ticks out of the hot store: each batch is
// serialized to JSONL, uploaded, and only then pruned, so a failed upload
// never loses rows.
type Archiver struct {
	writer BlobWriter
	ticks  IndexTickSource
	quotes QuoteTickSource
	batch  int
	logger *slog.Logger
}

// NewArchiver creates an Archiver writing batches of at most batch rows.
func NewArchiver(writer BlobWriter, ticks IndexTickSource, quotes QuoteTickSource, batch int, logger *slog.Logger) *Archiver {
	if batch <= 0 {
		batch = 5000
	}
	return &Archiver{
		writer: writer,
		ticks:  ticks,
		quotes: quotes,
		batch:  batch,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveBefore uploads and prunes every index and quote tick older than the
// cutoff. It returns the total number of rows moved.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMinute := cutoff.Unix() - cutoff.Unix()%60

	moved, err := a.archiveIndexTicks(ctx, cutoffMinute)
	if err != nil {
		return moved, err
	}
	quoteMoved, err := a.archiveQuoteTicks(ctx, cutoffMinute)
	moved += quoteMoved
	if err != nil {
		return moved, err
	}

	if moved > 0 {
		a.logger.Info("archive pass complete",
			slog.Int64("rows", moved),
			slog.Time("cutoff", cutoff))
	}
	return moved, nil
}

func (a *Archiver) archiveIndexTicks(ctx context.Context, cutoffMinute int64) (int64, error) {
	var moved int64
	for {
		ticks, err := a.ticks.TicksBefore(ctx, cutoffMinute, a.batch)
		if err != nil {
			return moved, fmt.Errorf("s3blob: read index ticks: %w", err)
		}
		if len(ticks) == 0 {
			return moved, nil
		}

		buf, err := marshalJSONL(ticks)
		if err != nil {
			return moved, fmt.Errorf("s3blob: marshal index ticks: %w", err)
		}
		path := archivePath("index_ticks", ticks[0].Minute, ticks[len(ticks)-1].Minute)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return moved, fmt.Errorf("s3blob: upload index ticks: %w", err)
		}

		// Prune exactly the uploaded range; rows are ordered by minute.
		deleted, err := a.ticks.DeleteTicksBefore(ctx, ticks[len(ticks)-1].Minute+1)
		if err != nil {
			return moved, fmt.Errorf("s3blob: prune index ticks: %w", err)
		}
		moved += deleted
	}
}

func (a *Archiver) archiveQuoteTicks(ctx context.Context, cutoffMinute int64) (int64, error) {
	var moved int64
	for {
		quotes, err := a.quotes.Before(ctx, cutoffMinute, a.batch)
		if err != nil {
			return moved, fmt.Errorf("s3blob: read quote ticks: %w", err)
		}
		if len(quotes) == 0 {
			return moved, nil
		}

		buf, err := marshalJSONL(quotes)
		if err != nil {
			return moved, fmt.Errorf("s3blob: marshal quote ticks: %w", err)
		}
		path := archivePath("quote_ticks", quotes[0].Minute, quotes[len(quotes)-1].Minute)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return moved, fmt.Errorf("s3blob: upload quote ticks: %w", err)
		}

		deleted, err := a.quotes.DeleteBefore(ctx, quotes[len(quotes)-1].Minute+1)
		if err != nil {
			return moved, fmt.Errorf("s3blob: prune quote ticks: %w", err)
		}
		moved += deleted
	}
}

// archivePath builds the S3 key for one batch, partitioned by the day of the
// first row and keyed by the minute range it covers.
//
//	archive/index_ticks/2026-03-02/1772416800-1772420340.jsonl
func archivePath(kind string, firstMinute, lastMinute int64) string {
	day := time.Unix(firstMinute, 0).UTC().Format("2006-01-02")
	return fmt.Sprintf("archive/%s/%s/%d-%d.jsonl", kind, day, firstMinute, lastMinute)
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
