// Package database provides the SQLite store for Lumy Core.
//
// The store is small and local: the device keeps its last known claim,
// the hash and body of the last applied cloud configuration and each
// widget's last good data here so that a reboot does not force a fresh
// pairing or a blank screen.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Forward-only schema migrations embedded in the binary
//   - Health checks used by the local API
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//   - Secrets (cloud API key, WiFi PSK) are never stored here
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql and are
// applied in version order, one transaction per file.
package database
