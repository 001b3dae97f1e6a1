package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"beta-portal-backend/pkg/auth"
	"beta-portal-backend/pkg/config"
	"beta-portal-backend/pkg/database"
	"beta-portal-backend/pkg/middleware"
	"beta-portal-backend/pkg/models"
	"beta-portal-backend/pkg/utils"
)

const (
	maxUsesLimit     = 5000
	expiresDaysLimit = 365
)

// TenantsHandler serves tenant creation, join-code redemption, membership
// approval and the tenant-scoped projections.
type TenantsHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

func NewTenantsHandler(cfg *config.Config, db database.DatabaseInterface) *TenantsHandler {
	return &TenantsHandler{config: cfg, db: db}
}

// requirePrincipal fetches the caller or writes the 401.
func (h *TenantsHandler) requirePrincipal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, err := middleware.RequirePrincipal(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required.")
		return nil, false
	}
	return p, true
}

// requireActiveMembership resolves the session's active tenant and the
// caller's active membership in it, writing the error response on failure.
func (h *TenantsHandler) requireActiveMembership(w http.ResponseWriter, p *auth.Principal) (*models.Membership, string, bool) {
	if p.Session.ActiveTenantID == nil {
		utils.WriteErrorResponseWithCode(w, http.StatusBadRequest, utils.CodeNoActiveTenant, "No active tenant selected.")
		return nil, "", false
	}
	tenantID := *p.Session.ActiveTenantID

	mem, err := h.db.GetMembership(p.User.ID, tenantID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteErrorResponseWithCode(w, http.StatusForbidden, utils.CodeNoActiveMembership, "Not an active member of this tenant.")
			return nil, "", false
		}
		slog.Error("membership lookup failed", "error", err)
		utils.WriteServerErrorResponse(w, "Membership lookup failed.")
		return nil, "", false
	}
	if mem.Status != models.StatusActive {
		utils.WriteErrorResponseWithCode(w, http.StatusForbidden, utils.CodeNoActiveMembership, "Not an active member of this tenant.")
		return nil, "", false
	}
	return mem, tenantID, true
}

func (h *TenantsHandler) requireAdmin(w http.ResponseWriter, mem *models.Membership) bool {
	if mem.Role != models.RoleAdmin {
		utils.WriteErrorResponseWithCode(w, http.StatusForbidden, utils.CodeAdminOnly, "Admin role required.")
		return false
	}
	return true
}

// Create makes a tenant, grants the creator an active admin membership,
// issues a default join code and selects the tenant on the session.
//
// POST /api/tenant/create
func (h *TenantsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	var req models.TenantCreateRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Expected JSON body.")
		return
	}

	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		utils.WriteBadRequestResponse(w, "Tenant name must be at least 2 characters.")
		return
	}

	// Secure by default: the join code requires approval unless the creator
	// explicitly opts out.
	requireApproval := req.RequireApproval == nil || *req.RequireApproval

	code, err := auth.MakeJoinCode(auth.JoinCodePrefix)
	if err != nil {
		slog.Error("join code generation failed", "error", err)
		utils.WriteServerErrorResponse(w, "Tenant creation failed.")
		return
	}

	now := time.Now()
	tenant := &models.Tenant{
		ID:              uuid.New().String(),
		Name:            name,
		CreatedAt:       now,
		CreatedByUserID: p.User.ID,
	}
	owner := &models.Membership{
		ID:        uuid.New().String(),
		UserID:    p.User.ID,
		TenantID:  tenant.ID,
		Role:      models.RoleAdmin,
		Status:    models.StatusActive,
		CreatedAt: now,
	}
	invite := &models.InviteCode{
		Code:            code,
		TenantID:        tenant.ID,
		DefaultRole:     models.RoleStudent,
		RequireApproval: requireApproval,
		CreatedAt:       now,
		CreatedByUserID: p.User.ID,
	}

	if err := h.db.CreateTenantWithOwner(tenant, owner, invite); err != nil {
		slog.Error("tenant creation failed", "error", err)
		utils.WriteServerErrorResponse(w, "Tenant creation failed.")
		return
	}

	if err := h.db.SetActiveTenant(p.Session.ID, &tenant.ID); err != nil {
		slog.Error("active tenant update failed", "error", err)
		utils.WriteServerErrorResponse(w, "Tenant creation failed.")
		return
	}

	utils.WriteCreatedResponse(w, map[string]interface{}{
		"tenant": map[string]string{"id": tenant.ID, "name": tenant.Name},
		"invite": map[string]interface{}{
			"code":             invite.Code,
			"require_approval": invite.RequireApproval,
		},
	})
}

// List returns the caller's memberships with tenant names plus the session's
// active tenant.
//
// GET /api/tenants
func (h *TenantsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	tenants, err := h.db.ListUserTenants(p.User.ID)
	if err != nil {
		slog.Error("tenant listing failed", "error", err)
		utils.WriteServerErrorResponse(w, "Tenant listing failed.")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"active_tenant_id": p.Session.ActiveTenantID,
		"tenants":          tenants,
	})
}

// Join redeems a join code. Check order: existence, expiry, use cap,
// already-member short-circuit (which never consumes a use), then the
// transactional consume-and-insert.
//
// POST /api/tenant/join
func (h *TenantsHandler) Join(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	var req models.TenantJoinRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Expected JSON body.")
		return
	}

	code := auth.NormalizeJoinCode(req.Code)
	if code == "" {
		utils.WriteBadRequestResponse(w, "Join code is required.")
		return
	}

	invite, err := h.db.GetInviteByCode(code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteErrorResponseWithCode(w, http.StatusNotFound, utils.CodeCodeNotFound, "Join code not found.")
			return
		}
		slog.Error("invite lookup failed", "error", err)
		utils.WriteServerErrorResponse(w, "Join failed.")
		return
	}

	now := time.Now()
	if invite.ExpiresAt != nil && !invite.ExpiresAt.After(now) {
		utils.WriteErrorResponseWithCode(w, http.StatusGone, utils.CodeCodeExpired, "Join code has expired.")
		return
	}
	if invite.MaxUses != nil && invite.UsesCount >= *invite.MaxUses {
		utils.WriteErrorResponseWithCode(w, http.StatusGone, utils.CodeCodeMaxUsesReached, "Join code has no uses left.")
		return
	}

	// Already a member: return the current row, never consume a use.
	if existing, err := h.db.GetMembership(p.User.ID, invite.TenantID); err == nil {
		utils.WriteSuccessResponse(w, map[string]interface{}{
			"membership":     existing,
			"already_member": true,
		})
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		slog.Error("membership lookup failed", "error", err)
		utils.WriteServerErrorResponse(w, "Join failed.")
		return
	}

	status := models.StatusActive
	if invite.RequireApproval {
		status = models.StatusPending
	}
	role := invite.DefaultRole
	if role == "" {
		role = models.RoleStudent
	}

	membership := &models.Membership{
		ID:        uuid.New().String(),
		UserID:    p.User.ID,
		TenantID:  invite.TenantID,
		Role:      role,
		Status:    status,
		CreatedAt: now,
	}

	consumed, err := h.db.ConsumeInviteAndAddMember(code, membership)
	if err != nil {
		if errors.Is(err, database.ErrAlreadyMember) {
			// Raced another redemption by the same user; report the row that won.
			if existing, lookupErr := h.db.GetMembership(p.User.ID, invite.TenantID); lookupErr == nil {
				utils.WriteSuccessResponse(w, map[string]interface{}{
					"membership":     existing,
					"already_member": true,
				})
				return
			}
		}
		slog.Error("invite redemption failed", "error", err)
		utils.WriteServerErrorResponse(w, "Join failed.")
		return
	}
	if !consumed {
		utils.WriteErrorResponseWithCode(w, http.StatusGone, utils.CodeCodeMaxUsesReached, "Join code has no uses left.")
		return
	}

	// A pending membership must not become the session's tenant context.
	if status == models.StatusActive {
		if err := h.db.SetActiveTenant(p.Session.ID, &invite.TenantID); err != nil {
			slog.Error("active tenant update failed", "error", err)
			utils.WriteServerErrorResponse(w, "Join failed.")
			return
		}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"membership": membership,
		"pending":    status == models.StatusPending,
	})
}

// Select sets the session's active tenant, permitted only with an active
// membership: pending or absent memberships fail closed.
//
// POST /api/tenant/select
func (h *TenantsHandler) Select(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	var req models.TenantSelectRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Expected JSON body.")
		return
	}
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		utils.WriteBadRequestResponse(w, "tenant_id is required.")
		return
	}

	mem, err := h.db.GetMembership(p.User.ID, tenantID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteErrorResponseWithCode(w, http.StatusForbidden, utils.CodeNotAMember, "Not a member of this tenant.")
			return
		}
		slog.Error("membership lookup failed", "error", err)
		utils.WriteServerErrorResponse(w, "Tenant selection failed.")
		return
	}
	if mem.Status != models.StatusActive {
		utils.WriteErrorResponseWithCode(w, http.StatusForbidden, utils.CodeMembershipNotActive, "Membership is not active.")
		return
	}

	if err := h.db.SetActiveTenant(p.Session.ID, &tenantID); err != nil {
		slog.Error("active tenant update failed", "error", err)
		utils.WriteServerErrorResponse(w, "Tenant selection failed.")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{"active_tenant_id": tenantID})
}

// Clear resets the session's active tenant.
//
// POST /api/tenant/clear
func (h *TenantsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := h.db.SetActiveTenant(p.Session.ID, nil); err != nil {
		slog.Error("active tenant update failed", "error", err)
		utils.WriteServerErrorResponse(w, "Tenant clearing failed.")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{"active_tenant_id": nil})
}

// Approve flips a pending membership to active in the caller's active
// tenant. Approving an absent or already-active membership reports
// approved=false; a second identical call is a no-op.
//
// POST /api/tenant/approve
func (h *TenantsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}
	mem, tenantID, ok := h.requireActiveMembership(w, p)
	if !ok {
		return
	}
	if !h.requireAdmin(w, mem) {
		return
	}

	var req models.MemberApproveRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Expected JSON body.")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		utils.WriteBadRequestResponse(w, "user_id is required.")
		return
	}

	approved, err := h.db.ApprovePendingMembership(tenantID, userID)
	if err != nil {
		slog.Error("membership approval failed", "error", err)
		utils.WriteServerErrorResponse(w, "Approval failed.")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{"approved": approved})
}

// CreateInvite issues a join code for the caller's active tenant. Join codes
// can never grant admin; that is an invariant, not a default.
//
// POST /api/tenant/invite/create
func (h *TenantsHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}
	mem, tenantID, ok := h.requireActiveMembership(w, p)
	if !ok {
		return
	}
	if !h.requireAdmin(w, mem) {
		return
	}

	var req models.InviteCreateRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Expected JSON body.")
		return
	}

	role := models.MembershipRole(strings.ToLower(strings.TrimSpace(req.Role)))
	if role == "" {
		role = models.RoleStudent
	}
	if role != models.RoleStudent && role != models.RoleTeacher {
		utils.WriteBadRequestResponse(w, "role must be student or teacher.")
		return
	}

	requireApproval := req.RequireApproval == nil || *req.RequireApproval

	if req.MaxUses != nil && (*req.MaxUses < 1 || *req.MaxUses > maxUsesLimit) {
		utils.WriteBadRequestResponse(w, "max_uses must be 1..5000.")
		return
	}
	if req.ExpiresDays != nil && (*req.ExpiresDays < 1 || *req.ExpiresDays > expiresDaysLimit) {
		utils.WriteBadRequestResponse(w, "expires_days must be 1..365.")
		return
	}

	now := time.Now()
	var expiresAt *time.Time
	if req.ExpiresDays != nil {
		t := now.Add(time.Duration(*req.ExpiresDays) * 24 * time.Hour)
		expiresAt = &t
	}

	code, err := auth.MakeJoinCode(auth.JoinCodePrefix)
	if err != nil {
		slog.Error("join code generation failed", "error", err)
		utils.WriteServerErrorResponse(w, "Invite creation failed.")
		return
	}

	invite := &models.InviteCode{
		Code:            code,
		TenantID:        tenantID,
		DefaultRole:     role,
		RequireApproval: requireApproval,
		ExpiresAt:       expiresAt,
		MaxUses:         req.MaxUses,
		CreatedAt:       now,
		CreatedByUserID: p.User.ID,
	}

	if err := h.db.CreateInvite(invite); err != nil {
		slog.Error("invite creation failed", "error", err)
		utils.WriteServerErrorResponse(w, "Invite creation failed.")
		return
	}

	utils.WriteCreatedResponse(w, map[string]interface{}{"invite": invite})
}

// Members lists all members of the caller's active tenant. Admin only, so
// member emails never leak to non-admin members.
//
// GET /api/tenant/members
func (h *TenantsHandler) Members(w http.ResponseWriter, r *http.Request) {
	h.listMembers(w, r, false)
}

// Pending lists join requests awaiting approval. Admin only.
//
// GET /api/tenant/pending
func (h *TenantsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	h.listMembers(w, r, true)
}

func (h *TenantsHandler) listMembers(w http.ResponseWriter, r *http.Request, pendingOnly bool) {
	p, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}
	mem, tenantID, ok := h.requireActiveMembership(w, p)
	if !ok {
		return
	}
	if !h.requireAdmin(w, mem) {
		return
	}

	var (
		members []models.MemberInfo
		err     error
	)
	if pendingOnly {
		members, err = h.db.ListPendingMembers(tenantID)
	} else {
		members, err = h.db.ListMembers(tenantID)
	}
	if err != nil {
		slog.Error("member listing failed", "error", err)
		utils.WriteServerErrorResponse(w, "Member listing failed.")
		return
	}

	key := "members"
	if pendingOnly {
		key = "pending"
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"tenant_id": tenantID,
		key:         members,
	})
}
