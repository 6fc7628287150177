package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gabrielsolarenergy/server/internal/http/middleware"
	"github.com/gabrielsolarenergy/server/internal/http/response"
	"github.com/gabrielsolarenergy/server/internal/repository"
	"github.com/gabrielsolarenergy/server/internal/service"
)

type UserHandler struct {
	sessions *service.SessionService
}

func NewUserHandler(sessions *service.SessionService) *UserHandler {
	return &UserHandler{sessions: sessions}
}

// Me returns the resolved account. The domain type's json tags keep the
// credential hash and 2FA secret out of the payload.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	views, err := h.sessions.List(user.ID, r.Header.Get("X-Refresh-Token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_SESSION_ID", "session id must be a UUID", nil)
		return
	}
	if err := h.sessions.Revoke(user.ID, sessionID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			response.Error(w, r, http.StatusNotFound, "SESSION_NOT_FOUND", "no such session", nil)
			return
		}
		writeServiceError(w, r, err)
		return
	}
	response.Ack(w, r, "session revoked")
}
