package middleware

import (
	"net/http"

	"beta-portal-backend/pkg/utils"
)

// The CSRF defense: state-changing requests must carry a fixed custom
// header. Browsers cannot attach custom headers cross-site without a CORS
// preflight, so the session cookie alone can never mutate state.
const (
	CsrfHeader      = "X-Requested-With"
	CsrfHeaderValue = "Beta"
)

// CSRF blocks non-GET/HEAD/OPTIONS requests missing the expected header.
// OPTIONS always passes so cross-origin preflights are not rejected.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get(CsrfHeader) != CsrfHeaderValue {
			utils.WriteErrorResponseWithCode(w, http.StatusForbidden, utils.CodeCsrfBlocked, "Missing CSRF header.")
			return
		}

		next.ServeHTTP(w, r)
	})
}
