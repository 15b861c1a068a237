package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Claim is the last registration answer seen from the backend.
type Claim struct {
	DeviceID   string    `json:"device_id"`
	Claimed    bool      `json:"claimed"`
	UserID     string    `json:"user_id,omitempty"`
	DeviceName string    `json:"device_name,omitempty"`
	ClaimedAt  time.Time `json:"claimed_at,omitzero"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Repository stores the claim for reporting. The backend stays the
// authority: a stored claim never skips a status check.
type Repository interface {
	SaveClaim(ctx context.Context, c Claim) error
	GetClaim(ctx context.Context, deviceID string) (Claim, error)
}

// SQLiteRepository implements Repository on the device_claim table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveClaim upserts c. A claimed_at already on record is kept while the
// device stays claimed.
func (r *SQLiteRepository) SaveClaim(ctx context.Context, c Claim) error {
	claimed := 0
	var claimedAt sql.NullString
	if c.Claimed {
		claimed = 1
		at := c.ClaimedAt
		if at.IsZero() {
			at = c.CheckedAt
		}
		claimedAt = sql.NullString{String: at.UTC().Format(time.RFC3339), Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO device_claim (device_id, claimed, user_id, device_name, claimed_at, checked_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			claimed = excluded.claimed,
			user_id = excluded.user_id,
			device_name = excluded.device_name,
			claimed_at = CASE WHEN excluded.claimed = 1
				THEN COALESCE(device_claim.claimed_at, excluded.claimed_at) END,
			checked_at = excluded.checked_at`,
		c.DeviceID, claimed, nullable(c.UserID), nullable(c.DeviceName), claimedAt,
		c.CheckedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("saving claim: %w", err)
	}
	return nil
}

// GetClaim returns the stored claim for deviceID, or ErrNotFound.
func (r *SQLiteRepository) GetClaim(ctx context.Context, deviceID string) (Claim, error) {
	var c Claim
	var claimed int
	var userID, name, claimedAt sql.NullString
	var checkedAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT device_id, claimed, user_id, device_name, claimed_at, checked_at
		FROM device_claim WHERE device_id = ?`, deviceID,
	).Scan(&c.DeviceID, &claimed, &userID, &name, &claimedAt, &checkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Claim{}, ErrNotFound
	}
	if err != nil {
		return Claim{}, fmt.Errorf("querying claim: %w", err)
	}

	c.Claimed = claimed == 1
	c.UserID = userID.String
	c.DeviceName = name.String
	if claimedAt.Valid {
		c.ClaimedAt, _ = time.Parse(time.RFC3339, claimedAt.String) //nolint:errcheck // written by SaveClaim
	}
	c.CheckedAt, _ = time.Parse(time.RFC3339, checkedAt) //nolint:errcheck // written by SaveClaim
	return c, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
