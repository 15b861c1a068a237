package display

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// defaultHistoryKeep is how many rows the history table retains.
const defaultHistoryKeep = 500

// HistoryEntry is one stored panel operation.
type HistoryEntry struct {
	Operation  string    `json:"operation"`
	Success    bool      `json:"success"`
	DurationMS int64     `json:"duration_ms"`
	RenderedAt time.Time `json:"rendered_at"`
}

// HistoryRepository stores recent panel operations.
type HistoryRepository interface {
	Record(ctx context.Context, ev Event) error
	Recent(ctx context.Context, limit int) ([]HistoryEntry, error)
}

// SQLiteHistory implements HistoryRepository on the render_history table.
type SQLiteHistory struct {
	db   *sql.DB
	keep int
}

// NewSQLiteHistory creates a history repository that keeps the newest keep
// rows. keep <= 0 selects the default.
func NewSQLiteHistory(db *sql.DB, keep int) *SQLiteHistory {
	if keep <= 0 {
		keep = defaultHistoryKeep
	}
	return &SQLiteHistory{db: db, keep: keep}
}

// Record stores ev and trims the table to the retention limit.
func (h *SQLiteHistory) Record(ctx context.Context, ev Event) error {
	success := 0
	if ev.Success {
		success = 1
	}
	if _, err := h.db.ExecContext(ctx,
		`INSERT INTO render_history (operation, success, duration_ms, rendered_at) VALUES (?, ?, ?, ?)`,
		ev.Operation, success, ev.Duration.Milliseconds(), ev.At.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("recording render history: %w", err)
	}

	if _, err := h.db.ExecContext(ctx,
		`DELETE FROM render_history WHERE id NOT IN (
			SELECT id FROM render_history ORDER BY id DESC LIMIT ?
		)`, h.keep,
	); err != nil {
		return fmt.Errorf("trimming render history: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (h *SQLiteHistory) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT operation, success, duration_ms, rendered_at
		 FROM render_history ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying render history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var success int
		var at string
		if err := rows.Scan(&e.Operation, &success, &e.DurationMS, &at); err != nil {
			return nil, fmt.Errorf("scanning render history: %w", err)
		}
		e.Success = success == 1
		e.RenderedAt, _ = time.Parse(time.RFC3339Nano, at) //nolint:errcheck // written by Record
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
