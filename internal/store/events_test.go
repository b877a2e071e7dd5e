package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"gembot/internal/domain"
)

func openTestLog(t *testing.T) *EventLog {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	log, err := Open(filepath.Join(t.TempDir(), "events.db"), logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func TestRecordAndRecent(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	recs := []domain.EventRecord{
		{Channel: "discord", ChatID: "c1", Outcome: "success", Chunks: 3, LatencyMs: 1200},
		{Channel: "discord", ChatID: "c2", Outcome: "blocked", Reason: "HATE_SPEECH", Chunks: 1},
		{Channel: "telegram", ChatID: "c3", Outcome: "failure"},
	}
	for _, r := range recs {
		if err := log.Record(ctx, r); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := log.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	// Newest first.
	if got[0].Outcome != "failure" || got[2].Outcome != "success" {
		t.Fatalf("unexpected order: %v, %v", got[0].Outcome, got[2].Outcome)
	}
	if got[1].Reason != "HATE_SPEECH" {
		t.Fatalf("reason lost: %+v", got[1])
	}
	if got[2].Chunks != 3 || got[2].LatencyMs != 1200 {
		t.Fatalf("fields lost: %+v", got[2])
	}
}

func TestRecent_Limit(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := log.Record(ctx, domain.EventRecord{Channel: "discord", ChatID: "c", Outcome: "success"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	got, err := log.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
}

func TestRecent_Empty(t *testing.T) {
	log := openTestLog(t)
	got, err := log.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no records, got %d", len(got))
	}
}
