package models

import "time"

// Tenant represents a beta program workspace. Immutable after creation.
type Tenant struct {
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	CreatedByUserID string    `json:"created_by_user_id" db:"created_by_user_id"`
}

type MembershipRole string

const (
	RoleAdmin   MembershipRole = "admin"
	RoleTeacher MembershipRole = "teacher"
	RoleStudent MembershipRole = "student"
)

type MembershipStatus string

const (
	StatusPending MembershipStatus = "pending"
	StatusActive  MembershipStatus = "active"
)

// Membership relates a user to a tenant with a role and approval status.
// At most one row exists per (user_id, tenant_id).
type Membership struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"user_id" db:"user_id"`
	TenantID  string           `json:"tenant_id" db:"tenant_id"`
	Role      MembershipRole   `json:"role" db:"role"`
	Status    MembershipStatus `json:"status" db:"status"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// TenantMembership is the listing row for a user's tenants (join with tenants).
type TenantMembership struct {
	TenantID string           `json:"tenant_id" db:"tenant_id"`
	Name     string           `json:"name" db:"name"`
	Role     MembershipRole   `json:"role" db:"role"`
	Status   MembershipStatus `json:"status" db:"status"`
}

// MemberInfo is the admin-facing member listing row (join with users).
type MemberInfo struct {
	UserID   string           `json:"user_id" db:"user_id"`
	Email    string           `json:"email" db:"email"`
	Role     MembershipRole   `json:"role" db:"role"`
	Status   MembershipStatus `json:"status" db:"status"`
	JoinedAt time.Time        `json:"joined_at" db:"joined_at"`
}

// TenantSelectRequest represents the request payload for selecting the active tenant
type TenantSelectRequest struct {
	TenantID string `json:"tenant_id"`
}

// TenantCreateRequest represents the request payload for tenant creation
type TenantCreateRequest struct {
	Name string `json:"name"`
	// RequireApproval controls the default join code. Absent means true:
	// approval is required unless explicitly opted out.
	RequireApproval *bool `json:"require_approval"`
}

// MemberApproveRequest represents the request payload for approving a pending member
type MemberApproveRequest struct {
	UserID string `json:"user_id"`
}
