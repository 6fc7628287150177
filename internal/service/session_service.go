package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielsolarenergy/server/internal/repository"
)

// SessionView is the caller-visible shape of one session. The token value
// itself is never exposed; the caller only learns which entry belongs to
// the credentials it presented.
type SessionView struct {
	ID         uuid.UUID `json:"id"`
	DeviceInfo string    `json:"device_info"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Current    bool      `json:"current"`
}

// SessionService lists and revokes an account's sessions and runs the
// background sweep that removes expired rows.
type SessionService struct {
	sessions repository.SessionRepository
	logger   *slog.Logger
}

func NewSessionService(sessions repository.SessionRepository, logger *slog.Logger) *SessionService {
	return &SessionService{sessions: sessions, logger: logger}
}

// List returns the account's sessions, marking the one matching the
// refresh token the caller presented (empty when unknown).
func (s *SessionService) List(userID uuid.UUID, currentToken string) ([]SessionView, error) {
	rows, err := s.sessions.ListByUserID(userID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, SessionView{
			ID:         row.ID,
			DeviceInfo: row.DeviceInfo,
			IPAddress:  row.IPAddress,
			CreatedAt:  row.CreatedAt,
			ExpiresAt:  row.ExpiresAt,
			Current:    currentToken != "" && row.RefreshToken == currentToken,
		})
	}
	return views, nil
}

// Revoke removes one session by id, scoped to the owning account so a
// caller cannot revoke someone else's session.
func (s *SessionService) Revoke(userID, sessionID uuid.UUID) error {
	removed, err := s.sessions.DeleteByIDForUser(userID, sessionID)
	if err != nil {
		return err
	}
	if !removed {
		return repository.ErrSessionNotFound
	}
	return nil
}

// CleanupNow removes expired sessions immediately. Exposed to the admin
// surface in addition to the periodic janitor.
func (s *SessionService) CleanupNow() (int64, error) {
	return s.sessions.CleanupExpired()
}

// RunJanitor sweeps expired sessions at the given interval until ctx is
// cancelled. Lazy eviction at refresh time handles the common case; the
// sweep catches sessions that were simply abandoned.
func (s *SessionService) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := s.sessions.CleanupExpired()
			if err != nil {
				s.logger.Error("expired session sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("expired sessions removed", "count", removed)
			}
		}
	}
}
