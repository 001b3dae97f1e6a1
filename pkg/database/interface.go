package database

import (
	"errors"
	"fmt"

	"beta-portal-backend/pkg/models"
)

// Sentinel errors shared by all implementations.
var (
	ErrNotFound      = errors.New("not found")
	ErrEmailExists   = errors.New("email already registered")
	ErrAlreadyMember = errors.New("membership already exists")
)

// DatabaseInterface defines the row-store access used by the handlers.
// Mutations whose affected-row count is load-bearing (the invite use cap and
// the pending->active approval) return a bool instead of relying on callers
// to re-read state, so concurrent updates can never exceed their guards.
type DatabaseInterface interface {
	// Users
	CreateUser(user *models.User) error
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)

	// Sessions
	CreateSession(session *models.Session) error
	// GetSessionByFingerprint returns the session joined with its user.
	GetSessionByFingerprint(fingerprint string) (*models.Session, *models.User, error)
	DeleteSession(id string) error
	DeleteSessionByFingerprint(fingerprint string) error
	SetActiveTenant(sessionID string, tenantID *string) error

	// Tenants & memberships
	// CreateTenantWithOwner inserts the tenant, the owning admin membership
	// and the default invite code as one unit.
	CreateTenantWithOwner(tenant *models.Tenant, owner *models.Membership, invite *models.InviteCode) error
	ListUserTenants(userID string) ([]models.TenantMembership, error)
	GetMembership(userID, tenantID string) (*models.Membership, error)
	ListMembers(tenantID string) ([]models.MemberInfo, error)
	ListPendingMembers(tenantID string) ([]models.MemberInfo, error)
	// ApprovePendingMembership flips pending->active and reports whether a
	// row actually changed. Approving an absent or already-active membership
	// is a no-op returning false.
	ApprovePendingMembership(tenantID, userID string) (bool, error)

	// Invite codes
	CreateInvite(invite *models.InviteCode) error
	GetInviteByCode(code string) (*models.InviteCode, error)
	// ConsumeInviteAndAddMember increments uses_count (guarded by max_uses)
	// and inserts the membership as one unit. Returns false when the code is
	// at its cap, ErrAlreadyMember when the user already holds a membership.
	ConsumeInviteAndAddMember(code string, membership *models.Membership) (bool, error)

	HealthCheck() error
	Close() error
}

// DatabaseConfig selects and configures the backing store.
type DatabaseConfig struct {
	PostgresDSN string
	Debug       bool
}

// NewDatabase picks the implementation for the given config: PostgreSQL when
// a DSN is set, otherwise the in-memory store (local development only; all
// state is lost on restart).
func NewDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	if config.PostgresDSN != "" {
		db, err := NewPostgresDatabase(config.PostgresDSN, config.Debug)
		if err != nil {
			return nil, fmt.Errorf("postgres init failed: %w", err)
		}
		return db, nil
	}
	return NewMemoryDatabase(), nil
}
