package auth

import (
	"net/http"
	"time"
)

// SessionCookieName uses the __Host- prefix: browsers only accept it with
// Secure, Path=/ and no Domain attribute.
const SessionCookieName = "__Host-beta_portal_sess"

// SessionLifetime is how long a session is valid after login.
const SessionLifetime = 7 * 24 * time.Hour

// SessionCookie builds the Set-Cookie value carrying the raw session token.
func SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionLifetime.Seconds()),
	}
}

// ClearSessionCookie builds the Set-Cookie value that removes the session
// cookie (Max-Age=0 with a past Expires).
func ClearSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	}
}
