package database

import (
	"sort"
	"sync"

	"beta-portal-backend/pkg/models"
)

// MemoryDatabase is an in-process DatabaseInterface used for local
// development and tests. A single mutex serializes every operation, which
// gives the multi-step mutations the same atomicity the Postgres
// implementation gets from transactions.
type MemoryDatabase struct {
	mu sync.Mutex

	users        map[string]models.User // by id
	usersByEmail map[string]string      // email -> id

	sessions     map[string]models.Session // by id
	sessionsByFP map[string]string         // fingerprint -> id

	tenants     map[string]models.Tenant
	memberships map[string]models.Membership // user_id|tenant_id
	invites     map[string]models.InviteCode // by code
}

// NewMemoryDatabase creates an empty in-memory store.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		users:        make(map[string]models.User),
		usersByEmail: make(map[string]string),
		sessions:     make(map[string]models.Session),
		sessionsByFP: make(map[string]string),
		tenants:      make(map[string]models.Tenant),
		memberships:  make(map[string]models.Membership),
		invites:      make(map[string]models.InviteCode),
	}
}

func membershipKey(userID, tenantID string) string {
	return userID + "|" + tenantID
}

func (d *MemoryDatabase) CreateUser(user *models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.usersByEmail[user.Email]; exists {
		return ErrEmailExists
	}
	d.users[user.ID] = *user
	d.usersByEmail[user.Email] = user.ID
	return nil
}

func (d *MemoryDatabase) GetUserByEmail(email string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.usersByEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	u := d.users[id]
	return &u, nil
}

func (d *MemoryDatabase) GetUserByID(id string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (d *MemoryDatabase) CreateSession(session *models.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sessions[session.ID] = *session
	d.sessionsByFP[session.TokenFingerprint] = session.ID
	return nil
}

func (d *MemoryDatabase) GetSessionByFingerprint(fingerprint string) (*models.Session, *models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.sessionsByFP[fingerprint]
	if !ok {
		return nil, nil, ErrNotFound
	}
	s := d.sessions[id]
	u, ok := d.users[s.UserID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	return &s, &u, nil
}

func (d *MemoryDatabase) DeleteSession(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.sessions[id]; ok {
		delete(d.sessionsByFP, s.TokenFingerprint)
		delete(d.sessions, id)
	}
	return nil
}

func (d *MemoryDatabase) DeleteSessionByFingerprint(fingerprint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.sessionsByFP[fingerprint]; ok {
		delete(d.sessions, id)
		delete(d.sessionsByFP, fingerprint)
	}
	return nil
}

func (d *MemoryDatabase) SetActiveTenant(sessionID string, tenantID *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[sessionID]
	if !ok {
		return nil
	}
	if tenantID == nil {
		s.ActiveTenantID = nil
	} else {
		v := *tenantID
		s.ActiveTenantID = &v
	}
	d.sessions[sessionID] = s
	return nil
}

func (d *MemoryDatabase) CreateTenantWithOwner(tenant *models.Tenant, owner *models.Membership, invite *models.InviteCode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tenants[tenant.ID] = *tenant
	d.memberships[membershipKey(owner.UserID, owner.TenantID)] = *owner
	d.invites[invite.Code] = *invite
	return nil
}

func (d *MemoryDatabase) ListUserTenants(userID string) ([]models.TenantMembership, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := []models.TenantMembership{}
	for _, m := range d.memberships {
		if m.UserID != userID {
			continue
		}
		t, ok := d.tenants[m.TenantID]
		if !ok {
			continue
		}
		list = append(list, models.TenantMembership{
			TenantID: m.TenantID,
			Name:     t.Name,
			Role:     m.Role,
			Status:   m.Status,
		})
	}
	// newest tenant first, matching the Postgres ordering
	sort.Slice(list, func(i, j int) bool {
		return d.tenants[list[i].TenantID].CreatedAt.After(d.tenants[list[j].TenantID].CreatedAt)
	})
	return list, nil
}

func (d *MemoryDatabase) GetMembership(userID, tenantID string) (*models.Membership, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.memberships[membershipKey(userID, tenantID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (d *MemoryDatabase) ListMembers(tenantID string) ([]models.MemberInfo, error) {
	return d.listMembers(tenantID, false)
}

func (d *MemoryDatabase) ListPendingMembers(tenantID string) ([]models.MemberInfo, error) {
	return d.listMembers(tenantID, true)
}

func (d *MemoryDatabase) listMembers(tenantID string, pendingOnly bool) ([]models.MemberInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members := []models.MemberInfo{}
	for _, m := range d.memberships {
		if m.TenantID != tenantID {
			continue
		}
		if pendingOnly && m.Status != models.StatusPending {
			continue
		}
		u, ok := d.users[m.UserID]
		if !ok {
			continue
		}
		members = append(members, models.MemberInfo{
			UserID:   m.UserID,
			Email:    u.Email,
			Role:     m.Role,
			Status:   m.Status,
			JoinedAt: m.CreatedAt,
		})
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

func (d *MemoryDatabase) ApprovePendingMembership(tenantID, userID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := membershipKey(userID, tenantID)
	m, ok := d.memberships[key]
	if !ok || m.Status != models.StatusPending {
		return false, nil
	}
	m.Status = models.StatusActive
	d.memberships[key] = m
	return true, nil
}

func (d *MemoryDatabase) CreateInvite(invite *models.InviteCode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.invites[invite.Code] = *invite
	return nil
}

func (d *MemoryDatabase) GetInviteByCode(code string) (*models.InviteCode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	inv, ok := d.invites[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (d *MemoryDatabase) ConsumeInviteAndAddMember(code string, membership *models.Membership) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	inv, ok := d.invites[code]
	if !ok {
		// matches the Postgres conditional update: no row, no use consumed
		return false, nil
	}
	if inv.MaxUses != nil && inv.UsesCount >= *inv.MaxUses {
		return false, nil
	}

	key := membershipKey(membership.UserID, membership.TenantID)
	if _, exists := d.memberships[key]; exists {
		return false, ErrAlreadyMember
	}

	inv.UsesCount++
	d.invites[code] = inv
	d.memberships[key] = *membership
	return true, nil
}

func (d *MemoryDatabase) HealthCheck() error {
	return nil
}

func (d *MemoryDatabase) Close() error {
	return nil
}
