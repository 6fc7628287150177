package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/http/middleware"
	"github.com/gabrielsolarenergy/server/internal/http/response"
	"github.com/gabrielsolarenergy/server/internal/service"
)

type TwoFactorHandler struct {
	twoFactor *service.TwoFactorService
}

func NewTwoFactorHandler(twoFactor *service.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{twoFactor: twoFactor}
}

func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	enrollment, err := h.twoFactor.Setup(user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, enrollment)
}

type twoFactorCodeRequest struct {
	Code string `json:"code"`
}

func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.twoFactor.ConfirmEnable, "two-factor authentication enabled")
}

func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.twoFactor.Disable, "two-factor authentication disabled")
}

func (h *TwoFactorHandler) confirm(w http.ResponseWriter, r *http.Request, apply func(user *domain.User, code string) error, message string) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	var req twoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed request body", nil)
		return
	}
	code := strings.TrimSpace(req.Code)
	if len(code) != 6 {
		response.Error(w, r, http.StatusBadRequest, "INVALID_CODE", "a 6-digit code is required", nil)
		return
	}
	if err := apply(user, code); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Ack(w, r, message)
}
