package models

import "time"

// InviteCode is a shareable join code for a tenant, bounded by an optional
// expiry and an optional use cap. uses_count never exceeds max_uses when set.
type InviteCode struct {
	Code            string         `json:"code" db:"code"`
	TenantID        string         `json:"tenant_id" db:"tenant_id"`
	DefaultRole     MembershipRole `json:"role" db:"default_role"`
	RequireApproval bool           `json:"require_approval" db:"require_approval"`
	ExpiresAt       *time.Time     `json:"expires_at" db:"expires_at"`
	MaxUses         *int           `json:"max_uses" db:"max_uses"`
	UsesCount       int            `json:"uses_count" db:"uses_count"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	CreatedByUserID string         `json:"created_by_user_id" db:"created_by_user_id"`
}

// InviteCreateRequest represents the request payload for issuing a join code
type InviteCreateRequest struct {
	Role string `json:"role"`
	// Absent means true: approval required unless explicitly opted out.
	RequireApproval *bool `json:"require_approval"`
	MaxUses         *int  `json:"max_uses"`
	ExpiresDays     *int  `json:"expires_days"`
}

// TenantJoinRequest represents the request payload for redeeming a join code
type TenantJoinRequest struct {
	Code string `json:"code"`
}
