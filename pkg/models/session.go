package models

import "time"

// Session is a server-side login session. Only the HMAC fingerprint of the
// raw cookie token is stored; the raw token itself lives in the client cookie
// and cannot be reconstructed from this row.
type Session struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	TokenFingerprint string    `json:"-" db:"token_fingerprint"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	ExpiresAt        time.Time `json:"expires_at" db:"expires_at"`
	ActiveTenantID   *string   `json:"active_tenant_id" db:"active_tenant_id"`
}
