package api

import (
	"net/http"

	"github.com/RayYiHang/warp-surge/internal/intercept"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Router builds the admin API router, the interception hook bridge, and
// the metrics endpoint.
func Router(a *API, hooks *intercept.Hooks, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// Account management
		r.Get("/accounts", ListAccountsHandler(a))
		r.Post("/accounts", AddAccountHandler(a))
		r.Delete("/accounts/{email}", DeleteAccountHandler(a))
		r.Post("/switch", SwitchAccountHandler(a))
		r.Get("/active", ActiveAccountHandler(a))

		// Stats and notifications
		r.Get("/stats", StatsHandler(a))
		r.Get("/refresh-stats", RefreshStatsHandler(a))
		r.Get("/notifications", NotificationsHandler(a))

		// Refresh
		r.Post("/refresh", ForceRefreshHandler(a))

		// Backup management
		r.Get("/backup", CreateBackupHandler(a))
		r.Post("/restore", RestoreBackupHandler(a))
		r.Delete("/clear", ClearAllHandler(a))

		// Settings
		r.Get("/settings", GetSettingsHandler(a))
		r.Post("/settings", UpdateSettingsHandler(a))
	})

	// Interception hook bridge for the proxy host
	r.Post("/hooks/request", RequestHookHandler(hooks))
	r.Post("/hooks/response", ResponseHookHandler(hooks))

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	return r
}
