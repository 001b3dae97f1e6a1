package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"beta-portal-backend/pkg/auth"
	"beta-portal-backend/pkg/config"
	"beta-portal-backend/pkg/database"
	"beta-portal-backend/pkg/middleware"
	"beta-portal-backend/pkg/utils"
)

const testSecret = "handlers-test-secret"

// testServer wires the real route table over the in-memory store, matching
// cmd/server.
func testServer(t *testing.T) (http.Handler, *database.MemoryDatabase) {
	t.Helper()

	cfg := &config.Config{
		Environment:   "test",
		Port:          "0",
		SessionSecret: testSecret,
	}
	db := database.NewMemoryDatabase()

	authHandler := NewAuthHandler(cfg, db)
	tenantsHandler := NewTenantsHandler(cfg, db)
	resolver := auth.NewResolver(db, cfg.SessionSecret)

	router := chi.NewRouter()
	router.Use(middleware.CSRF)
	router.Get("/", authHandler.HealthCheck)
	router.Route("/api", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(resolver))
			r.Get("/me", authHandler.Me)
			r.Get("/tenants", tenantsHandler.List)
			r.Route("/tenant", func(r chi.Router) {
				r.Post("/create", tenantsHandler.Create)
				r.Post("/join", tenantsHandler.Join)
				r.Post("/select", tenantsHandler.Select)
				r.Post("/clear", tenantsHandler.Clear)
				r.Post("/approve", tenantsHandler.Approve)
				r.Post("/invite/create", tenantsHandler.CreateInvite)
				r.Get("/members", tenantsHandler.Members)
				r.Get("/pending", tenantsHandler.Pending)
			})
		})
	})

	return router, db
}

type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   *utils.APIError        `json:"error"`
}

// doJSON performs a request with the CSRF header set and an optional session
// cookie, returning the decoded envelope.
func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, cookie *http.Cookie) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.CsrfHeader, middleware.CsrfHeaderValue)
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return rec, env
}

// registerAndLogin creates an account and returns its session cookie.
func registerAndLogin(t *testing.T, h http.Handler, email, password string) *http.Cookie {
	t.Helper()

	rec, env := doJSON(t, h, http.MethodPost, "/api/register", map[string]string{
		"email": email, "password": password,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, "register failed: %+v", env.Error)

	rec, env = doJSON(t, h, http.MethodPost, "/api/login", map[string]string{
		"email": email, "password": password,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, "login failed: %+v", env.Error)

	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("login response did not set a session cookie")
	return nil
}

// createTenant makes a tenant for the cookie's session and returns the
// tenant id plus the default join code.
func createTenant(t *testing.T, h http.Handler, cookie *http.Cookie, name string, requireApproval bool) (string, string) {
	t.Helper()

	rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/create", map[string]interface{}{
		"name":             name,
		"require_approval": requireApproval,
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, "tenant create failed: %+v", env.Error)

	tenant := env.Data["tenant"].(map[string]interface{})
	invite := env.Data["invite"].(map[string]interface{})
	return tenant["id"].(string), invite["code"].(string)
}

// createInvite issues a join code in the cookie's active tenant.
func createInvite(t *testing.T, h http.Handler, cookie *http.Cookie, body map[string]interface{}) string {
	t.Helper()

	rec, env := doJSON(t, h, http.MethodPost, "/api/tenant/invite/create", body, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, "invite create failed: %+v", env.Error)
	invite := env.Data["invite"].(map[string]interface{})
	return invite["code"].(string)
}

func uniqueEmail(prefix string, n int) string {
	return fmt.Sprintf("%s%d@example.com", prefix, n)
}
