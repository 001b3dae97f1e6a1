package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"beta-portal-backend/pkg/auth"
	"beta-portal-backend/pkg/config"
	"beta-portal-backend/pkg/database"
	"beta-portal-backend/pkg/handlers"
	"beta-portal-backend/pkg/middleware"
	"beta-portal-backend/pkg/utils"
)

func main() {
	cfg := config.GetCached()
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	db, err := database.NewDatabase(database.DatabaseConfig{
		PostgresDSN: cfg.PostgresDSN,
		Debug:       cfg.Debug,
	})
	if err != nil {
		slog.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.PostgresDSN == "" {
		slog.Warn("POSTGRES_DSN not set, using in-memory store; all state is lost on restart")
	}

	router := chi.NewRouter()
	setupMiddleware(router, cfg)
	setupRoutes(router, cfg, db)

	slog.Info("server listening", "port", cfg.Port, "environment", cfg.Environment)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func setupMiddleware(router *chi.Mux, cfg *config.Config) {
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(middleware.Recovery(cfg))

	router.Use(middleware.CORS(cfg))
	router.Use(chimiddleware.Timeout(25 * time.Second))
	router.Use(chimiddleware.Compress(5))

	router.Use(middleware.MaxBodySize(1 << 20)) // 1 MiB is plenty for every endpoint
	router.Use(middleware.ContentTypeJSON)

	// CSRF applies to the whole surface; it self-exempts GET/HEAD/OPTIONS.
	router.Use(middleware.CSRF)

	if cfg.IsDevelopment() {
		router.Use(chimiddleware.Heartbeat("/ping"))
	}
}

func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface) {
	authHandler := handlers.NewAuthHandler(cfg, db)
	tenantsHandler := handlers.NewTenantsHandler(cfg, db)
	resolver := auth.NewResolver(db, cfg.SessionSecret)

	router.Get("/", authHandler.HealthCheck)

	router.Route("/api", func(r chi.Router) {
		// Public routes. Logout stays public: it clears the cookie even
		// when the session is already gone.
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)

		// Protected routes behind the session resolver.
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

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, "Route not found: "+r.Method+" "+r.URL.Path)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, utils.CodeMethodNotAllowed,
			"Method "+r.Method+" not allowed for "+r.URL.Path)
	})
}
