package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"beta-portal-backend/pkg/config"
	"beta-portal-backend/pkg/utils"
)

// Recovery turns panics into 500 responses. The stack goes to the server
// log; the client only ever sees the generic SERVER_ERROR code.
func Recovery(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("panic recovered",
						"error", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					utils.WriteServerErrorResponse(w, "Internal server error.")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
