package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/security"
	"github.com/gabrielsolarenergy/server/internal/service"
)

type testResolver struct {
	user       *domain.User
	resolveErr error
}

func (r testResolver) ResolveAccount(string) (*domain.User, error) {
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	return r.user, nil
}

func (r testResolver) Authorize(user *domain.User, roles ...string) error {
	if !user.IsVerified {
		return service.ErrAccountNotVerified
	}
	for _, role := range roles {
		if user.Role == role {
			return nil
		}
	}
	return service.ErrForbidden
}

func withClaims(req *http.Request, subject string) *http.Request {
	claims := &security.Claims{}
	claims.Subject = subject
	return req.WithContext(context.WithValue(req.Context(), ClaimsContextKey, claims))
}

func TestResolveAccountStoresUser(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Role: domain.RoleUser, IsActive: true, IsVerified: true}
	mw := ResolveAccount(testResolver{user: user})

	var seen *domain.User
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := withClaims(httptest.NewRequest(http.MethodGet, "/", nil), user.ID.String())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if seen == nil || seen.ID != user.ID {
		t.Fatal("resolved user missing from context")
	}
}

func TestResolveAccountErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{service.ErrInactiveAccount, http.StatusForbidden},
	}
	for _, tc := range cases {
		mw := ResolveAccount(testResolver{resolveErr: tc.err})
		h := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))
		req := withClaims(httptest.NewRequest(http.MethodGet, "/", nil), uuid.NewString())
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rr.Code)
		}
	}
}

func TestRequireRoleDeniesWrongRole(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Role: domain.RoleUser, IsActive: true, IsVerified: true}
	resolver := testResolver{user: user}

	h := RequireRole(resolver, domain.RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserContextKey, user))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRequireRoleAllowsListedRole(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Role: domain.RoleSales, IsActive: true, IsVerified: true}
	resolver := testResolver{user: user}

	h := RequireRole(resolver, domain.RoleAdmin, domain.RoleSales)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserContextKey, user))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestRequireRoleDeniesUnverifiedAccount(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Role: domain.RoleAdmin, IsActive: true, IsVerified: false}
	resolver := testResolver{user: user}

	h := RequireRole(resolver, domain.RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserContextKey, user))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
