package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gabrielsolarenergy/server/internal/chat"
	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/http/middleware"
	"github.com/gabrielsolarenergy/server/internal/http/response"
	"github.com/gabrielsolarenergy/server/internal/repository"
)

const defaultHistoryLimit = 50

type ChatHandler struct {
	messages repository.ChatMessageRepository
}

func NewChatHandler(messages repository.ChatMessageRepository) *ChatHandler {
	return &ChatHandler{messages: messages}
}

// History returns the most recent messages of a room, oldest first. The
// room policy matches the relay: own room, or any room for admins.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	roomID := chi.URLParam(r, "roomID")
	if user.Role != domain.RoleAdmin && roomID != chat.RoomForUser(user.ID) {
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "room access denied", nil)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			response.Error(w, r, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 200", nil)
			return
		}
		limit = n
	}

	rows, err := h.messages.ListByRoom(roomID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"messages": rows})
}
