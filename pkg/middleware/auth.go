package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"beta-portal-backend/pkg/auth"
	"beta-portal-backend/pkg/utils"
)

// ContextKey is the type for context values set by this package.
type ContextKey string

const PrincipalContextKey ContextKey = "principal"

// Auth resolves the session cookie into a Principal and stores it in the
// request context. All protected routes sit behind it; handlers get the
// caller via RequirePrincipal and never touch the cookie chain themselves.
func Auth(resolver *auth.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(auth.SessionCookieName); err == nil {
				token = c.Value
			}

			principal, err := resolver.Resolve(token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrNoSession):
					utils.WriteUnauthorizedResponse(w, "No session.")
				case errors.Is(err, auth.ErrInvalidSession):
					utils.WriteUnauthorizedResponse(w, "Invalid session.")
				case errors.Is(err, auth.ErrSessionExpired):
					utils.WriteUnauthorizedResponse(w, "Session expired.")
				case errors.Is(err, auth.ErrConfigMissing):
					slog.Error("session secret not configured")
					utils.WriteServerErrorResponse(w, "Server misconfigured.")
				default:
					slog.Error("session resolution failed", "error", err)
					utils.WriteServerErrorResponse(w, "Session lookup failed.")
				}
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext fetches the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*auth.Principal)
	return p, ok
}

// RequirePrincipal returns the authenticated caller or an error. Routes
// behind Auth always have one; the error path guards miswired routing.
func RequirePrincipal(ctx context.Context) (*auth.Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p == nil {
		return nil, fmt.Errorf("caller not authenticated")
	}
	return p, nil
}
