package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/meyoo/platform/internal/api/handlers"
	"github.com/meyoo/platform/internal/api/middleware"
	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/identity"
	"github.com/meyoo/platform/internal/onboarding"
	"github.com/meyoo/platform/internal/organizations"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB                *gorm.DB
	Redis             *redis.Client
	Logger            *slog.Logger
	JWTService        *identity.JWTService
	AuthService       *identity.Service
	GoogleAuth        *identity.GoogleAuthenticator
	OrgService        *organizations.Service
	OnboardingService *onboarding.Service
	AllowedOrigins    []string // CORS allowed origins
	RateLimitReqs     int      // Rate limit requests per window
	RateLimitSecs     int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to localhost for development - configure in production
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.GoogleAuth)
	orgHandler := handlers.NewOrganizationHandler(cfg.OrgService)
	memberHandler := handlers.NewMemberHandler(cfg.OrgService)
	onboardingHandler := handlers.NewOnboardingHandler(cfg.OnboardingService)
	meHandler := handlers.NewMeHandler(cfg.AuthService)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/login/code", authHandler.RequestLoginCode)
		r.Post("/auth/login/code/verify", authHandler.VerifyLoginCode)
		r.Get("/auth/google", authHandler.GoogleLogin)
		r.Get("/auth/google/callback", authHandler.GoogleCallback)
		r.Post("/auth/logout", authHandler.Logout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			r.Get("/me", meHandler.Me)

			// Organization endpoints
			r.Route("/organizations", func(r chi.Router) {
				r.Post("/", orgHandler.Create)
				r.Put("/", orgHandler.Update)
				r.Get("/current", orgHandler.Current)
				r.Get("/members", orgHandler.Members)
			})

			// Onboarding endpoints
			r.Route("/onboarding", func(r chi.Router) {
				r.Get("/status", onboardingHandler.Status)
				r.Post("/advance", onboardingHandler.Advance)
				r.Post("/complete", onboardingHandler.Complete)
				r.Post("/skip", onboardingHandler.Skip)
				r.Post("/reset", onboardingHandler.Reset)
			})

			// Member roster endpoints
			r.Route("/members", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin, models.RoleOps))
				r.Post("/invite", memberHandler.Invite)
				r.Post("/invite/batch", memberHandler.InviteBatch)
				r.Delete("/{id}", memberHandler.Remove)
				r.Put("/{id}/role", memberHandler.UpdateRole)
			})
		})
	})

	return &Router{r}
}
