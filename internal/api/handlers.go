package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/RayYiHang/warp-surge/internal/account"
	"github.com/RayYiHang/warp-surge/internal/notify"
	"github.com/go-chi/chi/v5"
)

// ListAccountsHandler handles GET /api/accounts.
func ListAccountsHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := a.Accounts.List()
		if err != nil {
			respondError(w, err)
			return
		}
		respondData(w, map[string]interface{}{
			"accounts": summaries,
			"count":    len(summaries),
		})
	}
}

// AddAccountHandler handles POST /api/accounts. The body is one
// credential record.
func AddAccountHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var record account.Record
		if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
			respondError(w, &account.ValidationError{Reason: "malformed account payload"})
			return
		}
		if err := a.Accounts.Add(&record); err != nil {
			respondError(w, err)
			return
		}
		respondMessage(w, fmt.Sprintf("account %s added", record.Email))
	}
}

// DeleteAccountHandler handles DELETE /api/accounts/{email}.
func DeleteAccountHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")
		if err := a.Accounts.Delete(email); err != nil {
			respondError(w, err)
			return
		}
		respondMessage(w, fmt.Sprintf("account %s deleted", email))
	}
}

// SwitchAccountHandler handles POST /api/switch with body {email}.
func SwitchAccountHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, &account.ValidationError{Reason: "malformed switch payload"})
			return
		}
		if err := a.Accounts.SetActive(body.Email); err != nil {
			respondError(w, err)
			return
		}
		respondMessage(w, fmt.Sprintf("switched to account %s", body.Email))
	}
}

// ActiveAccountHandler handles GET /api/active.
func ActiveAccountHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := a.Accounts.GetActive()
		if err != nil {
			respondError(w, err)
			return
		}
		if record == nil {
			respond(w, http.StatusOK, envelope{Success: true, Message: "no active account"})
			return
		}
		respondData(w, record)
	}
}

// StatsHandler handles GET /api/stats.
func StatsHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := a.Backups.StorageStats()
		if err != nil {
			respondError(w, err)
			return
		}
		respondData(w, stats)
	}
}

// RefreshStatsHandler handles GET /api/refresh-stats: token_refresh
// outcomes over the trailing 24h plus the scheduler state.
func RefreshStatsHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := a.Logbook.Stats(24 * time.Hour)
		respondData(w, map[string]interface{}{
			"refreshes":      stats,
			"serviceRunning": a.Scheduler.Running(),
		})
	}
}

// NotificationsHandler handles GET /api/notifications?limit=N.
func NotificationsHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		notifications := a.Logbook.Recent(limit)
		if notifications == nil {
			notifications = []notify.Notification{}
		}
		respondData(w, notifications)
	}
}

// ForceRefreshHandler handles POST /api/refresh: operator-triggered
// bulk refresh that awaits every outcome.
func ForceRefreshHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.Scheduler.ForceRefreshAll(r.Context()); err != nil {
			respondError(w, err)
			return
		}
		respondMessage(w, "forced refresh complete")
	}
}

// CreateBackupHandler handles GET /api/backup.
func CreateBackupHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := a.Backups.Snapshot()
		if err != nil {
			respondError(w, err)
			return
		}
		respondData(w, doc)
	}
}

// RestoreBackupHandler handles POST /api/restore. The body is one
// backup document.
func RestoreBackupHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w, &account.ValidationError{Reason: "unreadable restore payload"})
			return
		}
		if err := a.Backups.Restore(data); err != nil {
			respondError(w, err)
			return
		}
		respondMessage(w, "backup restored")
	}
}

// ClearAllHandler handles DELETE /api/clear.
func ClearAllHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.Backups.ClearAll(); err != nil {
			respondError(w, err)
			return
		}
		respondMessage(w, "all data cleared")
	}
}

// GetSettingsHandler handles GET /api/settings.
func GetSettingsHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current, err := a.Settings.Get()
		if err != nil {
			respondError(w, err)
			return
		}
		respondData(w, current)
	}
}

// UpdateSettingsHandler handles POST /api/settings with a partial
// settings patch.
func UpdateSettingsHandler(a *API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patch := map[string]json.RawMessage{}
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			respondError(w, &account.ValidationError{Reason: "malformed settings payload"})
			return
		}
		merged, err := a.Settings.Update(patch)
		if err != nil {
			respondError(w, err)
			return
		}
		respondData(w, merged)
	}
}
