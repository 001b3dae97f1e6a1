package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"beta-portal-backend/pkg/config"
)

// CORS builds the CORS middleware. Credentials are required because auth
// rides on a cookie, and the CSRF header must be allowed or the defense in
// csrf.go would block every same-origin mutation after preflight.
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			CsrfHeader,
			"Cache-Control",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}

	if cfg.IsDevelopment() {
		corsOptions.AllowedOrigins = []string{"*"}
		// Cannot combine a wildcard origin with credentials.
		corsOptions.AllowCredentials = false
	}

	if len(cfg.AllowedOrigins) > 0 && cfg.AllowedOrigins[0] != "*" {
		corsOptions.AllowedOrigins = cfg.AllowedOrigins
		corsOptions.AllowCredentials = true
	}

	return cors.Handler(corsOptions)
}
