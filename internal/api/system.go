package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/lumy-core/internal/command"
)

// factoryResetConfirmation must be sent verbatim to reset local state.
const factoryResetConfirmation = "FACTORY RESET"

// resetTimeout bounds the in-memory widget reset.
const resetTimeout = 5 * time.Second

// FactoryResetRequest defines the options for a factory reset.
type FactoryResetRequest struct {
	ClearWidgetState bool   `json:"clear_widget_state"`
	ClearConfig      bool   `json:"clear_config"`
	ClearClaim       bool   `json:"clear_claim"`
	ClearHistory     bool   `json:"clear_history"`
	Confirm          string `json:"confirm"`
}

// FactoryResetResponse reports what was deleted.
type FactoryResetResponse struct {
	Status  string         `json:"status"`
	Deleted map[string]int `json:"deleted"`
	Message string         `json:"message"`
}

// handleFactoryReset clears selected local state in a single transaction.
//
// Clearing the applied config makes the next sync re-apply the cloud
// configuration even if it has not changed. Clearing widget state also
// drops the data the scheduler holds in memory. Clearing the claim makes
// the next boot re-check pairing with the cloud. Neither touches the device
// id or the WiFi credentials.
func (s *Server) handleFactoryReset(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "local state store is not available")
		return
	}

	var req FactoryResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Confirm != factoryResetConfirmation {
		writeBadRequest(w, `confirm field must be exactly "FACTORY RESET"`)
		return
	}

	var tables []string
	if req.ClearWidgetState {
		tables = append(tables, "widget_state")
	}
	if req.ClearConfig {
		tables = append(tables, "applied_config")
	}
	if req.ClearClaim {
		tables = append(tables, "device_claim")
	}
	if req.ClearHistory {
		tables = append(tables, "render_history")
	}
	if len(tables) == 0 {
		writeBadRequest(w, "at least one clear_* option must be true")
		return
	}

	ctx := r.Context()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("factory reset: failed to begin transaction", "error", err)
		writeInternalError(w, "failed to begin transaction")
		return
	}
	defer tx.Rollback() //nolint:errcheck // rollback is a no-op after commit

	deleted := make(map[string]int, len(tables))
	for _, table := range tables {
		// table comes from the fixed list above, never from the request.
		result, err := tx.ExecContext(ctx, "DELETE FROM "+table)
		if err != nil {
			s.logger.Error("factory reset: failed to clear table", "table", table, "error", err)
			writeInternalError(w, "failed to clear "+table)
			return
		}
		n, _ := result.RowsAffected() //nolint:errcheck // sqlite always reports affected rows
		deleted[table] = int(n)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("factory reset: failed to commit transaction", "error", err)
		writeInternalError(w, "failed to commit factory reset")
		return
	}

	s.logger.Info("factory reset committed", "deleted", deleted, "request_id", requestID(r))

	message := "local state cleared"
	if req.ClearConfig && s.sync != nil {
		s.sync.ForgetApplied()
	}
	if req.ClearWidgetState {
		rctx, cancel := context.WithTimeout(ctx, resetTimeout)
		rep, err := s.bus.Submit(rctx, command.ResetData, nil)
		cancel()
		if err == nil && !rep.Success {
			err = errors.New(rep.Error)
		}
		if err != nil {
			s.logger.Warn("factory reset: widget data not reset in memory", "error", err)
			message = "local state cleared; restart the device to drop cached widget data"
		}
	}

	writeJSON(w, http.StatusOK, FactoryResetResponse{
		Status:  "ok",
		Deleted: deleted,
		Message: message,
	})
}
