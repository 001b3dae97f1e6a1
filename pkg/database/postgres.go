package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"beta-portal-backend/pkg/models"

	"github.com/lib/pq"
)

// PostgresDatabase implements DatabaseInterface over lib/pq.
type PostgresDatabase struct {
	db    *sql.DB
	debug bool
}

// NewPostgresDatabase opens and pings a PostgreSQL connection with pool
// settings sized for a small single-instance deployment. With debug on,
// the guarded mutations log their affected-row outcomes.
func NewPostgresDatabase(dsn string, debug bool) (DatabaseInterface, error) {
	dsn = strings.TrimSpace(dsn)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if debug {
		slog.Debug("postgres connected", "max_open_conns", 10, "max_idle_conns", 2)
	}

	return &PostgresDatabase{db: db, debug: debug}, nil
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreateUser inserts a new user. Duplicate emails map to ErrEmailExists.
func (d *PostgresDatabase) CreateUser(user *models.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := d.db.Exec(query, user.ID, user.Email, user.Password, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail fetches a user by normalized email.
func (d *PostgresDatabase) GetUserByEmail(email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE email = $1
	`
	var u models.User
	err := d.db.QueryRow(query, email).Scan(&u.ID, &u.Email, &u.Password, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &u, nil
}

// GetUserByID fetches a user by id.
func (d *PostgresDatabase) GetUserByID(id string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE id = $1
	`
	var u models.User
	err := d.db.QueryRow(query, id).Scan(&u.ID, &u.Email, &u.Password, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// CreateSession inserts a session row.
func (d *PostgresDatabase) CreateSession(session *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token_fingerprint, created_at, expires_at, active_tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := d.db.Exec(query,
		session.ID, session.UserID, session.TokenFingerprint,
		session.CreatedAt, session.ExpiresAt, session.ActiveTenantID)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSessionByFingerprint looks up a session joined with its user. The
// fingerprint column is unique; no row means ErrNotFound.
func (d *PostgresDatabase) GetSessionByFingerprint(fingerprint string) (*models.Session, *models.User, error) {
	query := `
		SELECT
			s.id, s.user_id, s.token_fingerprint, s.created_at, s.expires_at, s.active_tenant_id,
			u.id, u.email, u.password_hash, u.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_fingerprint = $1
	`
	var s models.Session
	var u models.User
	err := d.db.QueryRow(query, fingerprint).Scan(
		&s.ID, &s.UserID, &s.TokenFingerprint, &s.CreatedAt, &s.ExpiresAt, &s.ActiveTenantID,
		&u.ID, &u.Email, &u.Password, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, &u, nil
}

// DeleteSession removes a session row. Deleting an absent row is a no-op.
func (d *PostgresDatabase) DeleteSession(id string) error {
	if _, err := d.db.Exec(`DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteSessionByFingerprint removes the session bound to a token fingerprint.
func (d *PostgresDatabase) DeleteSessionByFingerprint(fingerprint string) error {
	if _, err := d.db.Exec(`DELETE FROM sessions WHERE token_fingerprint = $1`, fingerprint); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SetActiveTenant updates the session's active tenant pointer. Membership
// checks are the caller's responsibility; this is an unconditional update.
func (d *PostgresDatabase) SetActiveTenant(sessionID string, tenantID *string) error {
	query := `UPDATE sessions SET active_tenant_id = $1 WHERE id = $2`
	if _, err := d.db.Exec(query, tenantID, sessionID); err != nil {
		return fmt.Errorf("failed to set active tenant: %w", err)
	}
	return nil
}

// CreateTenantWithOwner inserts tenant, owning membership and default invite
// in one transaction so a partial tenant never becomes visible.
func (d *PostgresDatabase) CreateTenantWithOwner(tenant *models.Tenant, owner *models.Membership, invite *models.InviteCode) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO tenants (id, name, created_at, created_by_user_id)
		VALUES ($1, $2, $3, $4)`,
		tenant.ID, tenant.Name, tenant.CreatedAt, tenant.CreatedByUserID)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO user_tenants (id, user_id, tenant_id, role, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		owner.ID, owner.UserID, owner.TenantID, owner.Role, owner.Status, owner.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create owner membership: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO tenant_invites
			(code, tenant_id, default_role, require_approval, expires_at, max_uses, uses_count, created_at, created_by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		invite.Code, invite.TenantID, invite.DefaultRole, invite.RequireApproval,
		invite.ExpiresAt, invite.MaxUses, invite.UsesCount, invite.CreatedAt, invite.CreatedByUserID)
	if err != nil {
		return fmt.Errorf("failed to create default invite: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tenant creation: %w", err)
	}
	return nil
}

// ListUserTenants returns the caller's memberships joined with tenant names.
func (d *PostgresDatabase) ListUserTenants(userID string) ([]models.TenantMembership, error) {
	query := `
		SELECT ut.tenant_id, t.name, ut.role, ut.status
		FROM user_tenants ut
		JOIN tenants t ON t.id = ut.tenant_id
		WHERE ut.user_id = $1
		ORDER BY t.created_at DESC
	`
	rows, err := d.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	list := []models.TenantMembership{}
	for rows.Next() {
		var tm models.TenantMembership
		if err := rows.Scan(&tm.TenantID, &tm.Name, &tm.Role, &tm.Status); err != nil {
			return nil, fmt.Errorf("failed to scan tenant row: %w", err)
		}
		list = append(list, tm)
	}
	return list, rows.Err()
}

// GetMembership fetches the single membership row for (user, tenant).
func (d *PostgresDatabase) GetMembership(userID, tenantID string) (*models.Membership, error) {
	query := `
		SELECT id, user_id, tenant_id, role, status, created_at
		FROM user_tenants
		WHERE user_id = $1 AND tenant_id = $2
	`
	var m models.Membership
	err := d.db.QueryRow(query, userID, tenantID).Scan(
		&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.Status, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

// ListMembers returns all members of a tenant, active first, admins first.
func (d *PostgresDatabase) ListMembers(tenantID string) ([]models.MemberInfo, error) {
	query := `
		SELECT ut.user_id, u.email, ut.role, ut.status, ut.created_at
		FROM user_tenants ut
		JOIN users u ON u.id = ut.user_id
		WHERE ut.tenant_id = $1
		ORDER BY ut.status DESC, ut.role DESC, ut.created_at ASC
	`
	return d.queryMembers(query, tenantID)
}

// ListPendingMembers returns members awaiting approval, oldest first.
func (d *PostgresDatabase) ListPendingMembers(tenantID string) ([]models.MemberInfo, error) {
	query := `
		SELECT ut.user_id, u.email, ut.role, ut.status, ut.created_at
		FROM user_tenants ut
		JOIN users u ON u.id = ut.user_id
		WHERE ut.tenant_id = $1 AND ut.status = 'pending'
		ORDER BY ut.created_at ASC
	`
	return d.queryMembers(query, tenantID)
}

func (d *PostgresDatabase) queryMembers(query, tenantID string) ([]models.MemberInfo, error) {
	rows, err := d.db.Query(query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []models.MemberInfo{}
	for rows.Next() {
		var m models.MemberInfo
		if err := rows.Scan(&m.UserID, &m.Email, &m.Role, &m.Status, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ApprovePendingMembership flips pending->active guarded by the current
// status, so concurrent approvals are idempotent. The affected-row count is
// the result.
func (d *PostgresDatabase) ApprovePendingMembership(tenantID, userID string) (bool, error) {
	query := `
		UPDATE user_tenants
		SET status = 'active'
		WHERE tenant_id = $1 AND user_id = $2 AND status = 'pending'
	`
	res, err := d.db.Exec(query, tenantID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to approve membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if d.debug {
		slog.Debug("membership approval", "tenant_id", tenantID, "user_id", userID, "approved", n > 0)
	}
	return n > 0, nil
}

// CreateInvite inserts a join code.
func (d *PostgresDatabase) CreateInvite(invite *models.InviteCode) error {
	query := `
		INSERT INTO tenant_invites
			(code, tenant_id, default_role, require_approval, expires_at, max_uses, uses_count, created_at, created_by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := d.db.Exec(query,
		invite.Code, invite.TenantID, invite.DefaultRole, invite.RequireApproval,
		invite.ExpiresAt, invite.MaxUses, invite.UsesCount, invite.CreatedAt, invite.CreatedByUserID)
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

// GetInviteByCode fetches a join code by its normalized value.
func (d *PostgresDatabase) GetInviteByCode(code string) (*models.InviteCode, error) {
	query := `
		SELECT code, tenant_id, default_role, require_approval, expires_at, max_uses, uses_count, created_at, created_by_user_id
		FROM tenant_invites
		WHERE code = $1
	`
	var inv models.InviteCode
	err := d.db.QueryRow(query, code).Scan(
		&inv.Code, &inv.TenantID, &inv.DefaultRole, &inv.RequireApproval,
		&inv.ExpiresAt, &inv.MaxUses, &inv.UsesCount, &inv.CreatedAt, &inv.CreatedByUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return &inv, nil
}

// ConsumeInviteAndAddMember runs the use-count increment and the membership
// insert in one transaction. The increment is conditional on the cap and
// checked via RowsAffected, so concurrent redemptions can never push
// uses_count past max_uses; losing the race rolls everything back.
func (d *PostgresDatabase) ConsumeInviteAndAddMember(code string, membership *models.Membership) (bool, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE tenant_invites
		SET uses_count = uses_count + 1
		WHERE code = $1 AND (max_uses IS NULL OR uses_count < max_uses)`,
		code)
	if err != nil {
		return false, fmt.Errorf("failed to consume invite use: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		if d.debug {
			slog.Debug("invite redemption lost to the use cap", "code", code)
		}
		return false, nil
	}

	_, err = tx.Exec(`
		INSERT INTO user_tenants (id, user_id, tenant_id, role, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		membership.ID, membership.UserID, membership.TenantID,
		membership.Role, membership.Status, membership.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Rolled back: the duplicate redemption does not consume a use.
			return false, ErrAlreadyMember
		}
		return false, fmt.Errorf("failed to create membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit redemption: %w", err)
	}
	return true, nil
}

// HealthCheck pings the database.
func (d *PostgresDatabase) HealthCheck() error {
	return d.db.Ping()
}

// Close releases the connection pool.
func (d *PostgresDatabase) Close() error {
	return d.db.Close()
}
