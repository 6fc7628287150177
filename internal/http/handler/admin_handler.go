package handler

import (
	"net/http"
	"strconv"

	"github.com/gabrielsolarenergy/server/internal/http/response"
	"github.com/gabrielsolarenergy/server/internal/repository"
	"github.com/gabrielsolarenergy/server/internal/service"
)

// AdminHandler serves the operational endpoints behind the admin role.
type AdminHandler struct {
	sessions *service.SessionService
	audits   repository.AuditRepository
}

func NewAdminHandler(sessions *service.SessionService, audits repository.AuditRepository) *AdminHandler {
	return &AdminHandler{sessions: sessions, audits: audits}
}

func (h *AdminHandler) CleanupSessions(w http.ResponseWriter, r *http.Request) {
	removed, err := h.sessions.CleanupNow()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]int64{"sessions_removed": removed})
}

// AuditLogs pages through the audit trail, newest first. An optional
// action query narrows the listing to one event type.
func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	req := repository.PageRequest{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "page_size"),
	}
	page, err := h.audits.ListPaged(req, r.URL.Query().Get("action"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}
