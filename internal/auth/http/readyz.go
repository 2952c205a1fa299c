package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
	"github.com/aussiebroadwan/ticketauth/pkg/authsdk"
	"github.com/aussiebroadwan/ticketauth/pkg/httpx"
	"github.com/aussiebroadwan/ticketauth/pkg/jwtx"
)

// ReadyzHandler answers 503 while the database, the signing keys or the
// replay cache (when configured) are unavailable.
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	keys *jwtx.KeySet,
	replayCache Pinger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authsdk.HealthChecks{
			Database: "ok",
			Signer:   "ok",
		}
		status := "ok"
		code := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
		}

		if !keys.IsReady() {
			checks.Signer = "error: no keys loaded"
			status, code = "degraded", http.StatusServiceUnavailable
		}

		if replayCache != nil {
			checks.ReplayCache = "ok"
			if err := replayCache.Ping(r.Context()); err != nil {
				checks.ReplayCache = "error: " + err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		httpx.WriteJSON(w, code, authsdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
