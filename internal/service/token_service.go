package service

import (
	"errors"
	"time"

	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/repository"
	"github.com/gabrielsolarenergy/server/internal/security"
)

// TokenService mints the access/refresh pair and exchanges a tracked refresh
// token for a fresh access token. Refresh tokens are not rotated: the same
// grant stays valid until it expires or is revoked.
type TokenService struct {
	jwtMgr      *security.JWTManager
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

func NewTokenService(jwtMgr *security.JWTManager, sessionRepo repository.SessionRepository, userRepo repository.UserRepository, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		jwtMgr:      jwtMgr,
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
	}
}

func (s *TokenService) MintPair(user *domain.User) (access, refresh string, err error) {
	access, err = s.jwtMgr.SignAccessToken(user.ID, user.Role, s.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.jwtMgr.SignRefreshToken(user.ID, s.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// Refresh exchanges a stored refresh token for a new access token. An
// expired session is evicted as a side effect of being noticed here.
func (s *TokenService) Refresh(refreshToken string) (string, error) {
	session, err := s.sessionRepo.FindByToken(refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return "", repository.ErrSessionNotFound
		}
		return "", err
	}
	if session.Expired(time.Now()) {
		_ = s.sessionRepo.DeleteByToken(refreshToken)
		return "", ErrSessionExpired
	}

	claims, err := s.jwtMgr.ParseRefreshToken(refreshToken)
	if err != nil {
		return "", ErrTokenPurposeMismatch
	}

	user, err := s.userRepo.FindByID(session.UserID)
	if err != nil {
		return "", err
	}
	if user.ID.String() != claims.Subject {
		return "", ErrTokenPurposeMismatch
	}
	return s.jwtMgr.SignAccessToken(user.ID, user.Role, s.accessTTL)
}
