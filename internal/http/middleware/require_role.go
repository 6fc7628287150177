package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/http/response"
	"github.com/gabrielsolarenergy/server/internal/service"
)

// AccountResolver turns an access-token subject into a live account and
// checks its role. *service.AuthService satisfies it.
type AccountResolver interface {
	ResolveAccount(subject string) (*domain.User, error)
	Authorize(user *domain.User, roles ...string) error
}

// ResolveAccount loads the account behind the authenticated claims and
// stores it in the context. Must run after AuthMiddleware.
func ResolveAccount(resolver AccountResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			user, err := resolver.ResolveAccount(claims.Subject)
			if err != nil {
				writeResolutionError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route on the resolved account holding one of the
// allowed roles. Must run after ResolveAccount.
func RequireRole(resolver AccountResolver, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			if err := resolver.Authorize(user, roles...); err != nil {
				writeResolutionError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeResolutionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
	case errors.Is(err, service.ErrInactiveAccount):
		response.Error(w, r, http.StatusForbidden, "ACCOUNT_INACTIVE", "account is deactivated", nil)
	case errors.Is(err, service.ErrAccountNotVerified):
		response.Error(w, r, http.StatusForbidden, "ACCOUNT_NOT_VERIFIED", "email address is not verified", nil)
	case errors.Is(err, service.ErrForbidden):
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error, team notified", nil)
	}
}
