package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gabrielsolarenergy/server/internal/chat"
	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/health"
	"github.com/gabrielsolarenergy/server/internal/http/handler"
	"github.com/gabrielsolarenergy/server/internal/http/middleware"
	"github.com/gabrielsolarenergy/server/internal/http/response"
	"github.com/gabrielsolarenergy/server/internal/security"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	UserHandler      *handler.UserHandler
	TwoFactorHandler *handler.TwoFactorHandler
	ChatHandler      *handler.ChatHandler
	AdminHandler     *handler.AdminHandler
	ChatRelay        *chat.Relay
	JWTManager       *security.JWTManager
	AccountResolver  middleware.AccountResolver
	Logger           *slog.Logger

	CORSOrigins        []string
	AuthRateLimitRPM   int
	ForgotRateLimitRPM int
	APIRateLimitRPM    int
	// Limiter backs the rate limiters with shared state; the router builds
	// in-process limiters when nil.
	Limiter        middleware.Limiter
	Readiness      *health.ProbeRunner
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(buildLimiter(dep, dep.APIRateLimitRPM, "api").Middleware())

	authLimiter := buildLimiter(dep, dep.AuthRateLimitRPM, "auth").Middleware()
	forgotLimiter := buildLimiter(dep, dep.ForgotRateLimitRPM, "forgot").Middleware()

	authn := middleware.AuthMiddleware(dep.JWTManager)
	resolve := middleware.ResolveAccount(dep.AccountResolver)
	adminOnly := middleware.RequireRole(dep.AccountResolver, domain.RoleAdmin)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Get("/verify-email", dep.AuthHandler.VerifyEmail)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
			r.With(authLimiter).Post("/logout", dep.AuthHandler.Logout)
			r.With(authn, resolve).Post("/logout-all", dep.AuthHandler.LogoutAll)
			r.With(forgotLimiter).Post("/password/forgot", dep.AuthHandler.ForgotPassword)
			r.With(authLimiter).Post("/password/reset", dep.AuthHandler.ResetPassword)
		})

		r.Route("/2fa", func(r chi.Router) {
			r.Use(authn, resolve)
			r.Post("/setup", dep.TwoFactorHandler.Setup)
			r.Post("/enable", dep.TwoFactorHandler.Enable)
			r.Post("/disable", dep.TwoFactorHandler.Disable)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn, resolve)
			r.Get("/me", dep.UserHandler.Me)
			r.Get("/me/sessions", dep.UserHandler.Sessions)
			r.Delete("/me/sessions/{sessionID}", dep.UserHandler.RevokeSession)
			r.Get("/chat/{roomID}/history", dep.ChatHandler.History)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authn, resolve, adminOnly)
			r.Post("/sessions/cleanup", dep.AdminHandler.CleanupSessions)
			r.Get("/audit-logs", dep.AdminHandler.AuditLogs)
		})
	})

	// The relay authenticates inside the upgraded connection so policy
	// failures reach the client as a close frame.
	r.Get("/ws/chat/{roomID}", dep.ChatRelay.HandleRoom)

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

func buildLimiter(dep Dependencies, rpm int, scope string) *middleware.RateLimiter {
	if dep.Limiter != nil {
		return middleware.NewDistributedRateLimiter(dep.Limiter, rpm, time.Minute, middleware.FailOpen, scope)
	}
	return middleware.NewRateLimiter(rpm, time.Minute, scope)
}
