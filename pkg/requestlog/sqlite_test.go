package requestlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestLog(t *testing.T) *SQLiteLog {
	t.Helper()
	log, err := OpenSQLiteLog(filepath.Join(t.TempDir(), "requests.db"), time.Second, nil)
	if err != nil {
		t.Fatalf("OpenSQLiteLog failed: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func TestRecordAndRecent(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	for i, rec := range []Record{
		{RequestID: "req-1", Model: "gpt-5-2025-08-07", AccountID: "a1", Status: 200, Chunks: 12, Latency: 800 * time.Millisecond},
		{RequestID: "req-2", Model: "gpt-5-2025-08-07", AccountID: "a2", Status: 503, Retries: 2, ErrorKind: "upstream_unavailable"},
	} {
		if err := log.Record(ctx, rec); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	records, err := log.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	// Newest first.
	if records[0].RequestID != "req-2" {
		t.Errorf("first record = %q, want req-2", records[0].RequestID)
	}
	if records[0].ErrorKind != "upstream_unavailable" {
		t.Errorf("error kind = %q", records[0].ErrorKind)
	}
	if records[0].Retries != 2 {
		t.Errorf("retries = %d, want 2", records[0].Retries)
	}
	if records[1].Latency != 800*time.Millisecond {
		t.Errorf("latency = %s, want 800ms", records[1].Latency)
	}
	if records[1].CreatedAt.IsZero() {
		t.Error("created_at must be stamped when omitted")
	}
}

func TestRecentLimit(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	for i := range 5 {
		rec := Record{RequestID: "req", Model: "m", AccountID: "a", Status: 200 + i}
		if err := log.Record(ctx, rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	records, err := log.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("got %d records, want 3", len(records))
	}
}

func TestPrune(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	old := Record{RequestID: "old", Model: "m", AccountID: "a", Status: 200,
		CreatedAt: time.Now().AddDate(0, 0, -30)}
	recent := Record{RequestID: "recent", Model: "m", AccountID: "a", Status: 200}
	for _, rec := range []Record{old, recent} {
		if err := log.Record(ctx, rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	deleted, err := log.Prune(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	records, err := log.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 || records[0].RequestID != "recent" {
		t.Errorf("surviving records = %+v", records)
	}
}

func TestPrunerUnconfigured(t *testing.T) {
	log := openTestLog(t)

	p := NewPruner(log, "", 0, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start with empty schedule should be a no-op: %v", err)
	}
	p.Stop()
}

func TestPrunerBadSchedule(t *testing.T) {
	log := openTestLog(t)

	p := NewPruner(log, "not a schedule", 7, nil)
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected an error for invalid schedule")
	}
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	if err := r.Record(context.Background(), Record{}); err != nil {
		t.Fatalf("NopRecorder must never fail: %v", err)
	}
}
