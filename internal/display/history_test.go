package display

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupHistoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`
		CREATE TABLE render_history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			operation   TEXT NOT NULL,
			success     INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			rendered_at TEXT NOT NULL
		) STRICT`); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return db
}

func TestSQLiteHistory_RecordAndTrim(t *testing.T) {
	h := NewSQLiteHistory(setupHistoryDB(t), 3)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ev := Event{Operation: OpRender, Success: i != 4, Duration: time.Duration(i) * time.Second, At: start.Add(time.Duration(i) * time.Minute)}
		if err := h.Record(ctx, ev); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := h.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3 after trim", len(entries))
	}
	if entries[0].Success {
		t.Error("newest entry should be the failed render")
	}
	if entries[0].DurationMS != 4000 {
		t.Errorf("DurationMS = %d, want 4000", entries[0].DurationMS)
	}
	if !entries[0].RenderedAt.Equal(start.Add(4 * time.Minute)) {
		t.Errorf("RenderedAt = %v", entries[0].RenderedAt)
	}
}
