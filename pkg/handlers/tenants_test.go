package handlers

import (
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beta-portal-backend/pkg/utils"
)

func TestTenantCreateSelectsAndGrantsAdmin(t *testing.T) {
	h, _ := testServer(t)
	admin := registerAndLogin(t, h, "owner@example.com", "long enough")

	tenantID, code := createTenant(t, h, admin, "Physics 101", true)
	assert.NotEmpty(t, tenantID)
	assert.Regexp(t, `^BETA-[A-Z2-9]{6}$`, code)

	// The new tenant is selected on the session.
	rec, env := doJSON(t, h, http.MethodGet, "/api/me", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tenantID, env.Data["active_tenant_id"])

	rec, env = doJSON(t, h, http.MethodGet, "/api/tenants", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	tenants := env.Data["tenants"].([]interface{})
	require.Len(t, tenants, 1)
	row := tenants[0].(map[string]interface{})
	assert.Equal(t, "Physics 101", row["name"])
	assert.Equal(t, "admin", row["role"])
	assert.Equal(t, "active", row["status"])
}

func TestTenantCreateValidation(t *testing.T) {
	h, _ := testServer(t)
	cookie := registerAndLogin(t, h, "short@example.com", "long enough")

	rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/create", map[string]string{
		"name": " x ",
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeBadRequest, env.Error.Code)
}

func TestJoinWithoutApproval(t *testing.T) {
	h, _ := testServer(t)
	admin := registerAndLogin(t, h, "open-owner@example.com", "long enough")
	tenantID, code := createTenant(t, h, admin, "Open Class", false)

	student := registerAndLogin(t, h, "student@example.com", "long enough")
	rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{
		"code": code,
	}, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, env.Data["pending"])
	mem := env.Data["membership"].(map[string]interface{})
	assert.Equal(t, "student", mem["role"])
	assert.Equal(t, "active", mem["status"])

	// An active join selects the tenant.
	rec, env = doJSON(t, h, http.MethodGet, "/api/me", nil, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tenantID, env.Data["active_tenant_id"])
}

func TestJoinNormalizesCode(t *testing.T) {
	h, _ := testServer(t)
	admin := registerAndLogin(t, h, "norm-owner@example.com", "long enough")
	_, code := createTenant(t, h, admin, "Norm Class", false)

	student := registerAndLogin(t, h, "norm-student@example.com", "long enough")
	rec, _ := doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{
		"code": "  " + strings.ToLower(code) + "  ",
	}, student)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJoinUnknownCode(t *testing.T) {
	h, _ := testServer(t)
	cookie := registerAndLogin(t, h, "lost@example.com", "long enough")

	rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{
		"code": "BETA-ZZZZZZ",
	}, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeCodeNotFound, env.Error.Code)
}

func TestJoinPendingApprovalFlow(t *testing.T) {
	h, _ := testServer(t)
	admin := registerAndLogin(t, h, "gate-owner@example.com", "long enough")
	tenantID, code := createTenant(t, h, admin, "Gated Class", true)

	student := registerAndLogin(t, h, "gate-student@example.com", "long enough")
	rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{
		"code": code,
	}, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, env.Data["pending"])
	mem := env.Data["membership"].(map[string]interface{})
	studentID := mem["user_id"].(string)

	// A pending join must not become the session's tenant context.
	rec, env = doJSON(t, h, http.MethodGet, "/api/me", nil, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.Data["active_tenant_id"])

	// Nor can the tenant be selected while pending.
	rec, env = doJSON(t, h, http.MethodPost, "/api/tenant/select", map[string]string{
		"tenant_id": tenantID,
	}, student)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeMembershipNotActive, env.Error.Code)

	// Admin sees the request in the pending projection.
	rec, env = doJSON(t, h, http.MethodGet, "/api/tenant/pending", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := env.Data["pending"].([]interface{})
	require.Len(t, pending, 1)
	assert.Equal(t, "gate-student@example.com", pending[0].(map[string]interface{})["email"])

	rec, env = doJSON(t, h, http.MethodPost, "/api/tenant/approve", map[string]string{
		"user_id": studentID,
	}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, env.Data["approved"])

	// Approval is idempotent: the second call reports approved=false.
	rec, env = doJSON(t, h, http.MethodPost, "/api/tenant/approve", map[string]string{
		"user_id": studentID,
	}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, env.Data["approved"])

	// The student can select the tenant now.
	rec, env = doJSON(t, h, http.MethodPost, "/api/tenant/select", map[string]string{
		"tenant_id": tenantID,
	}, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tenantID, env.Data["active_tenant_id"])
}

func TestRequireApprovalDefaultsOn(t *testing.T) {
	h, _ := testServer(t)
	admin := registerAndLogin(t, h, "default-owner@example.com", "long enough")

	// Tenant create without the require_approval field: the default join
	// code must require approval.
	rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/create", map[string]string{
		"name": "Default Class",
	}, admin)
	require.Equal(t, http.StatusCreated, rec.Code)
	invite := env.Data["invite"].(map[string]interface{})
	assert.Equal(t, true, invite["require_approval"])
	defaultCode := invite["code"].(string)

	student := registerAndLogin(t, h, "default-student@example.com", "long enough")
	rec, env = doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{
		"code": defaultCode,
	}, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, env.Data["pending"])

	// Same default on invite create with an empty body.
	rec, env = doJSON(t, h, http.MethodPost, "/api/tenant/invite/create", map[string]interface{}{}, admin)
	require.Equal(t, http.StatusCreated, rec.Code)
	issued := env.Data["invite"].(map[string]interface{})
	assert.Equal(t, true, issued["require_approval"])

	second := registerAndLogin(t, h, "default-second@example.com", "long enough")
	rec, env = doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{
		"code": issued["code"].(string),
	}, second)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, env.Data["pending"])
}

func TestApproveUnknownUser(t *testing.T) {
	h, _ := testServer(t)
	admin := registerAndLogin(t, h, "noone-owner@example.com", "long enough")
	createTenant(t, h, admin, "Empty Class", true)

	rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/approve", map[string]string{
		"user_id": "no-such-user",
	}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, env.Data["approved"])
}

func TestAdminGatedEndpoints(t *testing.T) {
	h, _ := testServer(t)
	admin := registerAndLogin(t, h, "strict-owner@example.com", "long enough")
	_, code := createTenant(t, h, admin, "Strict Class", false)

	student := registerAndLogin(t, h, "plain-student@example.com", "long enough")
	rec, _ := doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{
		"code": code,
	}, student)
	require.Equal(t, http.StatusOK, rec.Code)

	// The student has the tenant active but is not admin.
	for _, call := range []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodGet, "/api/tenant/members", nil},
		{http.MethodGet, "/api/tenant/pending", nil},
		{http.MethodPost, "/api/tenant/approve", map[string]string{"user_id": "x"}},
		{http.MethodPost, "/api/tenant/invite/create", map[string]interface{}{}},
	} {
		rec, env := doJSON(t, h, call.method, call.path, call.body, student)
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", call.method, call.path)
		require.NotNil(t, env.Error)
		assert.Equal(t, utils.CodeAdminOnly, env.Error.Code)
	}

	// Without an active tenant the same endpoints fail earlier.
	rec, _ = doJSON(t, h, http.MethodPost, "/api/tenant/clear", nil, student)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env := doJSON(t, h, http.MethodGet, "/api/tenant/members", nil, student)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeNoActiveTenant, env.Error.Code)
}

func TestSelectForeignTenant(t *testing.T) {
	h, _ := testServer(t)
	admin := registerAndLogin(t, h, "mine-owner@example.com", "long enough")
	tenantID, _ := createTenant(t, h, admin, "Mine Class", true)

	outsider := registerAndLogin(t, h, "outsider@example.com", "long enough")
	rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/select", map[string]string{
		"tenant_id": tenantID,
	}, outsider)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeNotAMember, env.Error.Code)
}

func TestInviteCreateValidation(t *testing.T) {
	h, _ := testServer(t)
	admin := registerAndLogin(t, h, "inv-owner@example.com", "long enough")
	createTenant(t, h, admin, "Invite Class", true)

	for name, body := range map[string]map[string]interface{}{
		"admin role":     {"role": "admin"},
		"unknown role":   {"role": "janitor"},
		"zero max_uses":  {"max_uses": 0},
		"huge max_uses":  {"max_uses": 5001},
		"zero expiry":    {"expires_days": 0},
		"expiry too far": {"expires_days": 366},
	} {
		t.Run(name, func(t *testing.T) {
			rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/invite/create", body, admin)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, utils.CodeBadRequest, env.Error.Code)
		})
	}
}

func TestInviteTeacherRoleAndExpiry(t *testing.T) {
	h, db := testServer(t)
	admin := registerAndLogin(t, h, "exp-owner@example.com", "long enough")
	createTenant(t, h, admin, "Expiring Class", true)

	code := createInvite(t, h, admin, map[string]interface{}{
		"role":             "teacher",
		"require_approval": false,
		"expires_days":     1,
	})

	invite, err := db.GetInviteByCode(code)
	require.NoError(t, err)
	require.NotNil(t, invite.ExpiresAt)

	// Backdate the code past its expiry and redeem.
	past := time.Now().Add(-time.Hour)
	invite.ExpiresAt = &past
	require.NoError(t, db.CreateInvite(invite))

	teacher := registerAndLogin(t, h, "late-teacher@example.com", "long enough")
	rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{
		"code": code,
	}, teacher)
	assert.Equal(t, http.StatusGone, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeCodeExpired, env.Error.Code)
}

func TestJoinAlreadyMemberDoesNotConsumeUse(t *testing.T) {
	h, db := testServer(t)
	admin := registerAndLogin(t, h, "dupes-owner@example.com", "long enough")
	createTenant(t, h, admin, "Dupes Class", false)

	code := createInvite(t, h, admin, map[string]interface{}{
		"require_approval": false,
		"max_uses":         2,
	})

	student := registerAndLogin(t, h, "dupes-student@example.com", "long enough")
	rec, _ := doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{"code": code}, student)
	require.Equal(t, http.StatusOK, rec.Code)

	// Redeeming again reports the existing membership without burning a use.
	rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{"code": code}, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, env.Data["already_member"])

	invite, err := db.GetInviteByCode(code)
	require.NoError(t, err)
	assert.Equal(t, 1, invite.UsesCount)
}

func TestJoinMaxUsesExhaustion(t *testing.T) {
	h, db := testServer(t)
	admin := registerAndLogin(t, h, "cap-owner@example.com", "long enough")
	createTenant(t, h, admin, "Capped Class", false)

	code := createInvite(t, h, admin, map[string]interface{}{
		"require_approval": false,
		"max_uses":         1,
	})

	first := registerAndLogin(t, h, "cap-first@example.com", "long enough")
	rec, _ := doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{"code": code}, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := registerAndLogin(t, h, "cap-second@example.com", "long enough")
	rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{"code": code}, second)
	assert.Equal(t, http.StatusGone, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.CodeCodeMaxUsesReached, env.Error.Code)

	invite, err := db.GetInviteByCode(code)
	require.NoError(t, err)
	assert.Equal(t, 1, invite.UsesCount)
}

func TestConcurrentRedemptionNeverOversubscribes(t *testing.T) {
	const (
		redeemers = 16
		maxUses   = 5
	)

	h, db := testServer(t)
	admin := registerAndLogin(t, h, "race-owner@example.com", "long enough")
	createTenant(t, h, admin, "Race Class", false)

	code := createInvite(t, h, admin, map[string]interface{}{
		"require_approval": false,
		"max_uses":         maxUses,
	})

	cookies := make([]*http.Cookie, redeemers)
	for i := range cookies {
		cookies[i] = registerAndLogin(t, h, uniqueEmail("racer", i), "long enough")
	}

	codes := make([]int, redeemers)
	var wg sync.WaitGroup
	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, _ := doJSON(t, h, http.MethodPost, "/api/tenant/join", map[string]string{
				"code": code,
			}, cookies[i])
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	var won, gone int
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			won++
		case http.StatusGone:
			gone++
		default:
			t.Fatalf("unexpected status %d", c)
		}
	}
	assert.Equal(t, maxUses, won)
	assert.Equal(t, redeemers-maxUses, gone)

	invite, err := db.GetInviteByCode(code)
	require.NoError(t, err)
	assert.Equal(t, maxUses, invite.UsesCount)

	// The winners plus the admin.
	rec, env := doJSON(t, h, http.MethodGet, "/api/tenant/members", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	members := env.Data["members"].([]interface{})
	assert.Len(t, members, maxUses+1)
}
