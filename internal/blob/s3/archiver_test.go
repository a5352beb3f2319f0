package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
)

type capturedObject struct {
	path  string
	lines int
}

type memWriter struct {
	objects []capturedObject
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			lines++
		}
	}
	w.objects = append(w.objects, capturedObject{path: path, lines: lines})
	return nil
}

type memTickSource struct {
	ticks []domain.IndexTick
}

func (s *memTickSource) TicksBefore(_ context.Context, cutoff int64, limit int) ([]domain.IndexTick, error) {
	var out []domain.IndexTick
	for _, t := range s.ticks {
		if t.Minute < cutoff {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memTickSource) DeleteTicksBefore(_ context.Context, cutoff int64) (int64, error) {
	kept := s.ticks[:0]
	var deleted int64
	for _, t := range s.ticks {
		if t.Minute < cutoff {
			deleted++
		} else {
			kept = append(kept, t)
		}
	}
	s.ticks = kept
	return deleted, nil
}

type memQuoteSource struct {
	quotes []domain.QuoteTick
}

func (s *memQuoteSource) Before(_ context.Context, cutoff int64, limit int) ([]domain.QuoteTick, error) {
	var out []domain.QuoteTick
	for _, q := range s.quotes {
		if q.Minute < cutoff {
			out = append(out, q)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memQuoteSource) DeleteBefore(_ context.Context, cutoff int64) (int64, error) {
	kept := s.quotes[:0]
	var deleted int64
	for _, q := range s.quotes {
		if q.Minute < cutoff {
			deleted++
		} else {
			kept = append(kept, q)
		}
	}
	s.quotes = kept
	return deleted, nil
}

func minuteAt(t time.Time) int64 { return t.Unix() - t.Unix()%60 }

func TestArchiveMovesAgedRowsOnly(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cutoff := base.Add(24 * time.Hour)

	ticks := &memTickSource{}
	for i := 0; i < 5; i++ {
		ticks.ticks = append(ticks.ticks, domain.IndexTick{
			GuildID: 1, Minute: minuteAt(base.Add(time.Duration(i) * time.Minute)),
			Category: domain.CategoryChat, Value: 100,
		})
	}
	// One fresh row that must survive.
	ticks.ticks = append(ticks.ticks, domain.IndexTick{
		GuildID: 1, Minute: minuteAt(cutoff.Add(time.Hour)), Category: domain.CategoryChat,
	})

	quotes := &memQuoteSource{quotes: []domain.QuoteTick{
		{GuildID: 1, Symbol: domain.SymbolChatIndex, Minute: minuteAt(base), Price: 100},
	}}

	writer := &memWriter{}
	a := NewArchiver(writer, ticks, quotes, 100, slog.New(slog.DiscardHandler))

	moved, err := a.ArchiveBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveBefore: %v", err)
	}
	if moved != 6 {
		t.Errorf("moved = %d, want 6", moved)
	}
	if len(ticks.ticks) != 1 {
		t.Errorf("remaining ticks = %d, want the fresh row only", len(ticks.ticks))
	}
	if len(quotes.quotes) != 0 {
		t.Errorf("remaining quotes = %d, want 0", len(quotes.quotes))
	}

	if len(writer.objects) != 2 {
		t.Fatalf("uploaded objects = %d, want 2", len(writer.objects))
	}
	if writer.objects[0].lines != 5 {
		t.Errorf("index object lines = %d, want 5", writer.objects[0].lines)
	}
	if !strings.HasPrefix(writer.objects[0].path, "archive/index_ticks/2026-03-01/") {
		t.Errorf("index object path = %q", writer.objects[0].path)
	}
	if !strings.HasPrefix(writer.objects[1].path, "archive/quote_ticks/2026-03-01/") {
		t.Errorf("quote object path = %q", writer.objects[1].path)
	}
}

func TestArchiveBatchesLargeBacklogs(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ticks := &memTickSource{}
	for i := 0; i < 7; i++ {
		ticks.ticks = append(ticks.ticks, domain.IndexTick{
			GuildID: 1, Minute: minuteAt(base.Add(time.Duration(i) * time.Minute)),
			Category: domain.CategoryChat,
		})
	}

	writer := &memWriter{}
	a := NewArchiver(writer, ticks, &memQuoteSource{}, 3, slog.New(slog.DiscardHandler))

	moved, err := a.ArchiveBefore(context.Background(), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("ArchiveBefore: %v", err)
	}
	if moved != 7 {
		t.Errorf("moved = %d, want 7", moved)
	}
	// 7 rows in batches of 3 → 3 uploads.
	if len(writer.objects) != 3 {
		t.Errorf("uploads = %d, want 3", len(writer.objects))
	}
}

func TestArchiveNothingDueIsNoop(t *testing.T) {
	writer := &memWriter{}
	a := NewArchiver(writer, &memTickSource{}, &memQuoteSource{}, 10, slog.New(slog.DiscardHandler))

	moved, err := a.ArchiveBefore(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveBefore: %v", err)
	}
	if moved != 0 || len(writer.objects) != 0 {
		t.Errorf("moved = %d, uploads = %d, want 0/0", moved, len(writer.objects))
	}
}
