// Package handler decodes HTTP requests, runs them through the service
// layer and writes enveloped responses.
package handler

import (
	"errors"
	"net/http"

	"github.com/gabrielsolarenergy/server/internal/http/response"
	"github.com/gabrielsolarenergy/server/internal/repository"
	"github.com/gabrielsolarenergy/server/internal/service"
)

// writeServiceError maps service sentinels onto stable caller-visible
// categories. Anything unmapped is an internal failure and surfaces as an
// opaque generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrEmailAlreadyActive):
		response.Error(w, r, http.StatusConflict, "EMAIL_IN_USE", "an account with this email already exists", nil)
	case errors.Is(err, service.ErrInvalidOrExpiredLink):
		response.Error(w, r, http.StatusBadRequest, "INVALID_LINK", "the link is invalid or has expired", nil)
	case errors.Is(err, service.ErrAccountNotFound):
		response.Error(w, r, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "no account matches this link", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "incorrect email or password", nil)
	case errors.Is(err, service.ErrAccountNotVerified):
		response.Error(w, r, http.StatusForbidden, "ACCOUNT_NOT_VERIFIED", "email address is not verified", nil)
	case errors.Is(err, service.ErrInvalidTwoFactorCode):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_2FA_CODE", "invalid two-factor code", nil)
	case errors.Is(err, service.ErrAlreadyEnrolled):
		response.Error(w, r, http.StatusConflict, "ALREADY_ENROLLED", "two-factor authentication is already enabled", nil)
	case errors.Is(err, service.ErrSessionExpired):
		response.Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "session has expired, log in again", nil)
	case errors.Is(err, repository.ErrSessionNotFound):
		response.Error(w, r, http.StatusUnauthorized, "SESSION_NOT_FOUND", "no matching session", nil)
	case errors.Is(err, service.ErrTokenPurposeMismatch):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_TOKEN", "token is not a refresh token", nil)
	case errors.Is(err, service.ErrUnauthenticated):
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
	case errors.Is(err, service.ErrInactiveAccount):
		response.Error(w, r, http.StatusForbidden, "ACCOUNT_INACTIVE", "account is deactivated", nil)
	case errors.Is(err, service.ErrForbidden):
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
	case errors.Is(err, service.ErrSessionPersistFailure):
		response.Error(w, r, http.StatusInternalServerError, "SESSION_PERSIST_FAILURE", "could not record the session, try again", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error, team notified", nil)
	}
}
