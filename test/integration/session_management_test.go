package integration

import (
	"encoding/json"
	"net/http"
	"testing"
)

type sessionView struct {
	ID         string `json:"id"`
	DeviceInfo string `json:"device_info"`
	Current    bool   `json:"current"`
}

func listSessions(t *testing.T, s *testServer, access, refresh string) []sessionView {
	t.Helper()
	headers := bearer(access)
	if refresh != "" {
		headers["X-Refresh-Token"] = refresh
	}
	resp, env := s.doJSON(t, http.MethodGet, "/api/v1/me/sessions", nil, headers)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("list sessions: status=%d env=%+v", resp.StatusCode, env)
	}
	var views []sessionView
	if err := json.Unmarshal(env.Data, &views); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	return views
}

func TestSessionListMarksCurrentDevice(t *testing.T) {
	s := newAuthTestServer(t)
	password := s.registerAndVerify(t, "devices@example.com")

	first := s.login(t, "devices@example.com", password)
	second := s.login(t, "devices@example.com", password)

	views := listSessions(t, s, second.AccessToken, second.RefreshToken)
	if len(views) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(views))
	}
	current := 0
	for _, v := range views {
		if v.Current {
			current++
		}
	}
	if current != 1 {
		t.Fatalf("exactly one session should be current, got %d", current)
	}

	// Without the refresh token hint nothing is marked current.
	for _, v := range listSessions(t, s, first.AccessToken, "") {
		if v.Current {
			t.Fatal("no session should be current without the refresh token header")
		}
	}
}

func TestRevokeSessionInvalidatesRefreshToken(t *testing.T) {
	s := newAuthTestServer(t)
	password := s.registerAndVerify(t, "revoke@example.com")

	victim := s.login(t, "revoke@example.com", password)
	keeper := s.login(t, "revoke@example.com", password)

	views := listSessions(t, s, keeper.AccessToken, keeper.RefreshToken)
	var victimID string
	for _, v := range views {
		if !v.Current {
			victimID = v.ID
		}
	}
	if victimID == "" {
		t.Fatal("could not locate the other session")
	}

	resp, env := s.doJSON(t, http.MethodDelete, "/api/v1/me/sessions/"+victimID, nil, bearer(keeper.AccessToken))
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("revoke: status=%d env=%+v", resp.StatusCode, env)
	}

	// Revoking again is a 404, and the revoked refresh token is dead.
	resp, _ = s.doJSON(t, http.MethodDelete, "/api/v1/me/sessions/"+victimID, nil, bearer(keeper.AccessToken))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second revoke should 404, got %d", resp.StatusCode)
	}
	resp, _ = s.doJSON(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": victim.RefreshToken,
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked session must not refresh, got %d", resp.StatusCode)
	}

	// The surviving session is untouched.
	resp, _ = s.doJSON(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": keeper.RefreshToken,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("surviving session should refresh, got %d", resp.StatusCode)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	s := newAuthTestServer(t)
	password := s.registerAndVerify(t, "logoutall@example.com")

	a := s.login(t, "logoutall@example.com", password)
	b := s.login(t, "logoutall@example.com", password)

	resp, env := s.doJSON(t, http.MethodPost, "/api/v1/auth/logout-all", nil, bearer(a.AccessToken))
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("logout-all: status=%d env=%+v", resp.StatusCode, env)
	}
	var payload struct {
		SessionsRevoked int64 `json:"sessions_revoked"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.SessionsRevoked != 2 {
		t.Fatalf("expected 2 revoked sessions, got %d", payload.SessionsRevoked)
	}

	for _, refresh := range []string{a.RefreshToken, b.RefreshToken} {
		resp, _ = s.doJSON(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
			"refresh_token": refresh,
		}, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("refresh after logout-all should 401, got %d", resp.StatusCode)
		}
	}
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	s := newAuthTestServer(t)
	password := s.registerAndVerify(t, "plain@example.com")
	grant := s.login(t, "plain@example.com", password)

	resp, env := s.doJSON(t, http.MethodPost, "/api/v1/admin/sessions/cleanup", nil, bearer(grant.AccessToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin should get 403, got %d", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %+v", env.Error)
	}
}
