// Package api exposes the administrative JSON surface consumed by the
// management UI.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/RayYiHang/warp-surge/internal/account"
	"github.com/RayYiHang/warp-surge/internal/backup"
	"github.com/RayYiHang/warp-surge/internal/kv"
	"github.com/RayYiHang/warp-surge/internal/notify"
	"github.com/RayYiHang/warp-surge/internal/refresh"
	"github.com/RayYiHang/warp-surge/internal/settings"
)

// API bundles the component dependencies of the admin handlers.
type API struct {
	Accounts  *account.Store
	Settings  *settings.Service
	Logbook   *notify.Log
	Backups   *backup.Service
	Scheduler *refresh.Scheduler
}

// envelope is the uniform response shape of every admin operation.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respond(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func respondData(w http.ResponseWriter, data interface{}) {
	respond(w, http.StatusOK, envelope{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, message string) {
	respond(w, http.StatusOK, envelope{Success: true, Message: message})
}

func respondError(w http.ResponseWriter, err error) {
	respond(w, statusFor(err), envelope{Success: false, Error: err.Error()})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var validation *account.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest
	}
	var notFound *account.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var storage *kv.StorageError
	if errors.As(err, &storage) {
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
