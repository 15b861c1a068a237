package widget

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository persists each widget's last good data.
type Repository interface {
	Save(ctx context.Context, st State) error
	Load(ctx context.Context, id string) (State, error)
	List(ctx context.Context) ([]State, error)
}

// SQLiteRepository implements Repository on the widget_state table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save upserts st.
func (r *SQLiteRepository) Save(ctx context.Context, st State) error {
	data := st.Data
	if data == nil {
		data = Data{}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding widget data: %w", err)
	}

	updated := st.LastUpdate
	if updated.IsZero() {
		updated = time.Now()
	}

	var lastErr sql.NullString
	if st.LastError != "" {
		lastErr = sql.NullString{String: st.LastError, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO widget_state (widget_id, widget_type, data, updated_at, last_error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(widget_id) DO UPDATE SET
			widget_type = excluded.widget_type,
			data = excluded.data,
			updated_at = excluded.updated_at,
			last_error = excluded.last_error`,
		st.ID, st.Type, string(body), updated.UTC().Format(time.RFC3339Nano), lastErr,
	); err != nil {
		return fmt.Errorf("saving widget %s: %w", st.ID, err)
	}
	return nil
}

// Load returns the stored state for id, or ErrNotFound.
func (r *SQLiteRepository) Load(ctx context.Context, id string) (State, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT widget_id, widget_type, data, updated_at, last_error
		FROM widget_state WHERE widget_id = ?`, id)

	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return st, err
}

// List returns every stored state ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]State, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT widget_id, widget_type, data, updated_at, last_error
		FROM widget_state ORDER BY widget_id`)
	if err != nil {
		return nil, fmt.Errorf("querying widget state: %w", err)
	}
	defer rows.Close()

	var out []State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating widget state: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanState(s scanner) (State, error) {
	var st State
	var body, updated string
	var lastErr sql.NullString
	if err := s.Scan(&st.ID, &st.Type, &body, &updated, &lastErr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return State{}, err
		}
		return State{}, fmt.Errorf("scanning widget state: %w", err)
	}
	if err := json.Unmarshal([]byte(body), &st.Data); err != nil {
		return State{}, fmt.Errorf("decoding widget %s data: %w", st.ID, err)
	}
	st.LastUpdate, _ = time.Parse(time.RFC3339Nano, updated) //nolint:errcheck // written by Save
	st.LastError = lastErr.String
	st.Enabled = true
	return st, nil
}
