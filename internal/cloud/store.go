package cloud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ConfigStore remembers the last configuration applied to the device.
type ConfigStore interface {
	// LastApplied returns the hash of the last applied configuration, or ""
	// when none was ever applied.
	LastApplied(ctx context.Context) (string, error)
	SaveApplied(ctx context.Context, hash string, body []byte) error
}

// SQLiteConfigStore implements ConfigStore on the applied_config table.
type SQLiteConfigStore struct {
	db       *sql.DB
	deviceID string
}

// NewSQLiteConfigStore creates a store for deviceID.
func NewSQLiteConfigStore(db *sql.DB, deviceID string) *SQLiteConfigStore {
	return &SQLiteConfigStore{db: db, deviceID: deviceID}
}

// LastApplied implements ConfigStore.
func (s *SQLiteConfigStore) LastApplied(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM applied_config WHERE device_id = ?`, s.deviceID,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying applied config: %w", err)
	}
	return hash, nil
}

// SaveApplied implements ConfigStore.
func (s *SQLiteConfigStore) SaveApplied(ctx context.Context, hash string, body []byte) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO applied_config (device_id, hash, body, applied_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			hash = excluded.hash,
			body = excluded.body,
			applied_at = excluded.applied_at`,
		s.deviceID, hash, string(body), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("saving applied config: %w", err)
	}
	return nil
}
