package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
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

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthHandler serves registration, login, logout and the current-principal
// endpoint.
type AuthHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

func NewAuthHandler(cfg *config.Config, db database.DatabaseInterface) *AuthHandler {
	return &AuthHandler{config: cfg, db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HealthCheck reports service and database status.
//
// GET /
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.db.HealthCheck(); err != nil {
		slog.Error("health check failed", "error", err)
		status = "degraded"
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"name":   "beta-portal-backend",
		"status": status,
	})
}

// Register creates a new user account.
//
// POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.UserRegisterRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Expected JSON body.")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" || !emailPattern.MatchString(email) {
		utils.WriteBadRequestResponse(w, "Invalid email.")
		return
	}
	if len(req.Password) < 8 {
		utils.WriteBadRequestResponse(w, "Password must be at least 8 characters.")
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("password hashing failed", "error", err)
		utils.WriteServerErrorResponse(w, "Password hashing failed.")
		return
	}

	user := &models.User{
		ID:        uuid.New().String(),
		Email:     email,
		Password:  passwordHash,
		CreatedAt: time.Now(),
	}

	if err := h.db.CreateUser(user); err != nil {
		if errors.Is(err, database.ErrEmailExists) {
			utils.WriteErrorResponseWithCode(w, http.StatusConflict, utils.CodeEmailExists, "Email already registered.")
			return
		}
		slog.Error("user creation failed", "error", err)
		utils.WriteServerErrorResponse(w, "Registration failed.")
		return
	}

	utils.WriteCreatedResponse(w, map[string]interface{}{
		"user": map[string]string{"id": user.ID, "email": user.Email},
	})
}

// Login verifies credentials and creates a session. A missing account and a
// wrong password are the same undifferentiated outcome.
//
// POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.UserLoginRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Expected JSON body.")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		utils.WriteBadRequestResponse(w, "Email + password required.")
		return
	}

	user, err := h.db.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteUnauthorizedResponse(w, "Invalid credentials.")
			return
		}
		slog.Error("user lookup failed", "error", err)
		utils.WriteServerErrorResponse(w, "Login failed.")
		return
	}

	if !auth.VerifyPassword(req.Password, user.Password) {
		utils.WriteUnauthorizedResponse(w, "Invalid credentials.")
		return
	}

	token, err := auth.NewToken(auth.TokenLength)
	if err != nil {
		slog.Error("token generation failed", "error", err)
		utils.WriteServerErrorResponse(w, "Login failed.")
		return
	}

	now := time.Now()
	session := &models.Session{
		ID:               uuid.New().String(),
		UserID:           user.ID,
		TokenFingerprint: auth.Fingerprint(h.config.SessionSecret, token),
		CreatedAt:        now,
		ExpiresAt:        now.Add(auth.SessionLifetime),
	}
	if err := h.db.CreateSession(session); err != nil {
		slog.Error("session creation failed", "error", err)
		utils.WriteServerErrorResponse(w, "Login failed.")
		return
	}

	http.SetCookie(w, auth.SessionCookie(token))
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"user": map[string]string{"id": user.ID, "email": user.Email},
	})
}

// Logout deletes the caller's session and clears the cookie. It succeeds
// even when no valid session exists.
//
// POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(auth.SessionCookieName); err == nil && c.Value != "" && h.config.SessionSecret != "" {
		fp := auth.Fingerprint(h.config.SessionSecret, c.Value)
		if err := h.db.DeleteSessionByFingerprint(fp); err != nil {
			// best effort: the cookie is cleared regardless
			slog.Error("session delete failed", "error", err)
		}
	}

	http.SetCookie(w, auth.ClearSessionCookie())
	utils.WriteSuccessResponse(w, map[string]interface{}{"ok": true})
}

// Me returns the authenticated principal and its active tenant.
//
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.RequirePrincipal(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required.")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"user":             map[string]string{"id": p.User.ID, "email": p.User.Email},
		"active_tenant_id": p.Session.ActiveTenantID,
	})
}
