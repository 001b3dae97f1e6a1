package auth

import (
	"errors"
	"fmt"
	"time"

	"beta-portal-backend/pkg/database"
	"beta-portal-backend/pkg/models"
)

// Typed resolution failures. Handlers map these to stable error codes; any
// other error from Resolve is an infrastructure failure.
var (
	ErrNoSession      = errors.New("no session")
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionExpired = errors.New("session expired")
	ErrConfigMissing  = errors.New("session secret not configured")
)

// Principal is an authenticated caller: the user plus the session that
// carries the active tenant pointer.
type Principal struct {
	User    models.User
	Session models.Session
}

// now is swapped in tests to exercise expiry.
var now = time.Now

// Resolver is the single place that chains cookie token -> fingerprint ->
// session row -> user. Every protected operation goes through it; the chain
// is not reimplemented anywhere else.
type Resolver struct {
	db     database.DatabaseInterface
	secret string
}

// NewResolver creates a resolver bound to the process-wide session secret.
// The secret is injected here once, not read from globals at call sites.
func NewResolver(db database.DatabaseInterface, secret string) *Resolver {
	return &Resolver{db: db, secret: secret}
}

// Resolve turns the raw cookie token into a Principal or a typed failure.
// An expired session row is deleted as a side effect; there is no other
// garbage collection for sessions.
func (r *Resolver) Resolve(rawToken string) (*Principal, error) {
	if r.secret == "" {
		return nil, ErrConfigMissing
	}
	if rawToken == "" {
		return nil, ErrNoSession
	}

	fp := Fingerprint(r.secret, rawToken)

	session, user, err := r.db.GetSessionByFingerprint(fp)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}

	if !session.ExpiresAt.After(now()) {
		// Lazy cleanup: racing deletes of the same row are harmless.
		_ = r.db.DeleteSession(session.ID)
		return nil, ErrSessionExpired
	}

	return &Principal{User: *user, Session: *session}, nil
}
