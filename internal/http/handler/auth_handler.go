package handler

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/http/middleware"
	"github.com/gabrielsolarenergy/server/internal/http/response"
	"github.com/gabrielsolarenergy/server/internal/observability"
	"github.com/gabrielsolarenergy/server/internal/service"
)

const minPasswordLength = 8

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Location    string `json:"location"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed request body", nil)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_EMAIL", "a valid email address is required", nil)
		return
	}
	if len(req.Password) < minPasswordLength {
		response.Error(w, r, http.StatusBadRequest, "WEAK_PASSWORD", "password must be at least 8 characters", nil)
		return
	}

	err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Location:    strings.TrimSpace(req.Location),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Ack(w, r, "registration received, check your inbox to verify your email")
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		response.Error(w, r, http.StatusBadRequest, "INVALID_LINK", "the link is invalid or has expired", nil)
		return
	}
	if err := h.auth.VerifyEmail(r.Context(), token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"verified": true})
}

type loginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"two_factor_code,omitempty"`
}

type loginResponse struct {
	AccessToken  string       `json:"access_token,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type,omitempty"`
	Requires2FA  bool         `json:"requires_2fa,omitempty"`
	User         *domain.User `json:"user,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed request body", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "MISSING_CREDENTIALS", "email and password are required", nil)
		return
	}

	res, err := h.auth.Login(r.Context(), service.LoginInput{
		Email:         strings.TrimSpace(strings.ToLower(req.Email)),
		Password:      req.Password,
		TwoFactorCode: strings.TrimSpace(req.TwoFactorCode),
		IPAddress:     clientIP(r),
		DeviceInfo:    r.UserAgent(),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.Requires2FA {
		response.JSON(w, r, http.StatusOK, loginResponse{Requires2FA: true})
		return
	}
	observability.Audit(r, "login", "user_id", res.User.ID)
	response.JSON(w, r, http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "bearer",
		User:         res.User,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "refresh_token is required", nil)
		return
	}
	access, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{
		"access_token": access,
		"token_type":   "bearer",
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "refresh_token is required", nil)
		return
	}
	if err := h.auth.Logout(r.Context(), req.RefreshToken, clientIP(r), r.UserAgent()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Ack(w, r, "logged out")
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	revoked, err := h.auth.LogoutAll(r.Context(), user.ID, clientIP(r), r.UserAgent())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"message":          "logged out everywhere",
		"sessions_revoked": revoked,
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "email is required", nil)
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), strings.TrimSpace(strings.ToLower(req.Email))); err != nil {
		writeServiceError(w, r, err)
		return
	}
	// Identical acknowledgement whether or not the account exists.
	response.Ack(w, r, "if the email is registered, a reset link is on its way")
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "token and new_password are required", nil)
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		response.Error(w, r, http.StatusBadRequest, "WEAK_PASSWORD", "password must be at least 8 characters", nil)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "password_reset")
	response.Ack(w, r, "password updated, log in with your new password")
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from the proxy headers.
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.HasSuffix(host, "]") {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
