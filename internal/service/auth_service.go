package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/mail"
	"github.com/gabrielsolarenergy/server/internal/observability"
	"github.com/gabrielsolarenergy/server/internal/repository"
	"github.com/gabrielsolarenergy/server/internal/security"
)

// AuthService orchestrates registration, login, token refresh and the
// password lifecycle on top of the credential, token and two-factor
// primitives.
type AuthService struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	audits    repository.AuditRepository
	hasher    *security.PasswordHasher
	jwtMgr    *security.JWTManager
	tokens    *TokenService
	twoFactor *TwoFactorService
	enqueuer  mail.Enqueuer
	composer  *mail.Composer
	logger    *slog.Logger

	resetGuard ResetTokenGuard
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	audits repository.AuditRepository,
	hasher *security.PasswordHasher,
	jwtMgr *security.JWTManager,
	tokens *TokenService,
	twoFactor *TwoFactorService,
	enqueuer mail.Enqueuer,
	composer *mail.Composer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		audits:    audits,
		hasher:    hasher,
		jwtMgr:    jwtMgr,
		tokens:    tokens,
		twoFactor: twoFactor,
		enqueuer:  enqueuer,
		composer:  composer,
		logger:    logger,

		resetGuard: NewMemoryResetTokenGuard(),
	}
}

// UseResetTokenGuard swaps in a shared guard so reset links stay
// single-use across replicas.
func (s *AuthService) UseResetTokenGuard(guard ResetTokenGuard) {
	s.resetGuard = guard
}

type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
	Location    string
}

type LoginInput struct {
	Email         string
	Password      string
	TwoFactorCode string
	IPAddress     string
	DeviceInfo    string
}

// LoginResult is either a full token grant or a pending two-factor marker.
// When Requires2FA is set, no tokens and no account data are present.
type LoginResult struct {
	Requires2FA  bool
	AccessToken  string
	RefreshToken string
	User         *domain.User
}

// Register creates an unverified account and queues a verification email.
// Re-registering an unverified email re-sends the link instead of creating
// a duplicate; a verified email is rejected.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) error {
	existing, err := s.users.FindByEmail(in.Email)
	switch {
	case err == nil && existing.IsVerified:
		return ErrEmailAlreadyActive
	case err == nil:
		s.sendVerificationMail(existing.Email)
		return nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return err
	}
	user := &domain.User{
		Email:          in.Email,
		HashedPassword: hash,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		PhoneNumber:    in.PhoneNumber,
		Location:       in.Location,
		Role:           domain.RoleUser,
		IsActive:       true,
	}
	if err := s.users.Create(user); err != nil {
		return err
	}
	s.sendVerificationMail(user.Email)
	return nil
}

// VerifyEmail consumes a verify-purpose token and flips the verified flag.
// Verifying an already verified account is a no-op.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	email, err := s.jwtMgr.ParseEmailToken(token, security.PurposeVerify)
	if err != nil {
		return ErrInvalidOrExpiredLink
	}
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	if user.IsVerified {
		return nil
	}
	user.IsVerified = true
	return s.users.Update(user)
}

// Login runs the full credential and two-factor state machine. Unknown
// email and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	user, err := s.users.FindByEmail(in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthLogin("invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(in.Password, user.HashedPassword) {
		observability.RecordAuthLogin("invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		observability.RecordAuthLogin("inactive")
		return nil, ErrInactiveAccount
	}
	if !user.IsVerified {
		observability.RecordAuthLogin("unverified")
		return nil, ErrAccountNotVerified
	}

	if user.TwoFactorEnabled {
		if in.TwoFactorCode == "" {
			observability.RecordAuthLogin("pending_2fa")
			return &LoginResult{Requires2FA: true}, nil
		}
		if !s.twoFactor.VerifyLoginCode(user, in.TwoFactorCode) {
			observability.RecordAuthLogin("invalid_2fa")
			return nil, ErrInvalidTwoFactorCode
		}
	}

	access, refresh, err := s.tokens.MintPair(user)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &domain.Session{
		UserID:       user.ID,
		RefreshToken: refresh,
		DeviceInfo:   in.DeviceInfo,
		IPAddress:    in.IPAddress,
		ExpiresAt:    now.Add(s.tokens.RefreshTTL()),
	}
	audit := &domain.AuditLog{
		UserID:    &user.ID,
		Action:    domain.AuditActionLogin,
		IPAddress: in.IPAddress,
		UserAgent: in.DeviceInfo,
	}
	if err := s.sessions.RecordLogin(session, audit, now); err != nil {
		// The minted tokens are discarded with this error.
		s.logger.Error("persist login session failed", "user_id", user.ID, "error", err)
		observability.RecordAuthLogin("persist_failure")
		return nil, ErrSessionPersistFailure
	}
	user.LastLogin = &now

	observability.RecordAuthLogin("success")
	s.logger.Info("login succeeded", "user_id", user.ID, "ip", in.IPAddress)
	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	access, err := s.tokens.Refresh(refreshToken)
	if err != nil {
		observability.RecordAuthRefresh("failure")
		return "", err
	}
	observability.RecordAuthRefresh("success")
	return access, nil
}

// ForgotPassword queues a reset email when the account exists. The caller
// always receives the same acknowledgement either way.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, err := s.jwtMgr.SignEmailToken(user.Email, security.PurposeReset)
	if err != nil {
		return err
	}
	s.sendMail(s.composer.PasswordResetEmail(user.Email, token))
	return nil
}

// ResetPassword consumes a reset-purpose token, replaces the credential
// hash and revokes every session owned by the account.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, err := s.jwtMgr.ParseEmailToken(token, security.PurposeReset)
	if err != nil {
		return ErrInvalidOrExpiredLink
	}
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidOrExpiredLink
		}
		return err
	}

	first, err := s.resetGuard.MarkUsed(ctx, token, security.ResetTokenTTL)
	if err != nil {
		// A guard outage must not lock users out of account recovery.
		s.logger.Warn("reset token guard unavailable", "error", err)
	} else if !first {
		return ErrInvalidOrExpiredLink
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	user.HashedPassword = hash
	if err := s.users.Update(user); err != nil {
		return err
	}

	revoked, err := s.sessions.DeleteByUserID(user.ID)
	if err != nil {
		return err
	}
	s.logger.Info("password reset completed", "user_id", user.ID, "sessions_revoked", revoked)
	s.recordAudit(&user.ID, domain.AuditActionPasswordReset, "", "")
	return nil
}

// Logout revokes a single session by its refresh token. Unknown tokens are
// a no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken, ip, device string) error {
	session, err := s.sessions.FindByToken(refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordAuthLogout("noop")
			return nil
		}
		return err
	}
	if err := s.sessions.DeleteByToken(refreshToken); err != nil {
		return err
	}
	observability.RecordAuthLogout("success")
	s.recordAudit(&session.UserID, domain.AuditActionLogout, ip, device)
	return nil
}

// LogoutAll revokes every session owned by the account and reports how
// many were removed.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID, ip, device string) (int64, error) {
	revoked, err := s.sessions.DeleteByUserID(userID)
	if err != nil {
		return 0, err
	}
	observability.RecordAuthLogout("all")
	s.recordAudit(&userID, domain.AuditActionLogoutAll, ip, device)
	return revoked, nil
}

// ResolveAccount maps an access-token subject to a live account. Any
// resolution failure is reported as unauthenticated; a resolved but
// deactivated account is reported as inactive.
func (s *AuthService) ResolveAccount(subject string) (*domain.User, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.FindByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}
	return user, nil
}

// Authorize checks that a resolved account is verified and holds one of
// the allowed roles.
func (s *AuthService) Authorize(user *domain.User, roles ...string) error {
	if !user.IsVerified {
		return ErrAccountNotVerified
	}
	for _, role := range roles {
		if user.Role == role {
			return nil
		}
	}
	return ErrForbidden
}

func (s *AuthService) sendVerificationMail(email string) {
	token, err := s.jwtMgr.SignEmailToken(email, security.PurposeVerify)
	if err != nil {
		s.logger.Error("sign verification token failed", "error", err)
		return
	}
	s.sendMail(s.composer.VerificationEmail(email, token))
}

// sendMail enqueues in the background; a queue failure is logged and never
// surfaces to the request that triggered the email.
func (s *AuthService) sendMail(msg mail.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.enqueuer.Enqueue(ctx, msg); err != nil {
			s.logger.Error("enqueue mail failed", "to", msg.To, "error", err)
		}
	}()
}

func (s *AuthService) recordAudit(userID *uuid.UUID, action, ip, device string) {
	entry := &domain.AuditLog{
		UserID:    userID,
		Action:    action,
		IPAddress: ip,
		UserAgent: device,
	}
	if err := s.audits.Create(entry); err != nil {
		s.logger.Error("write audit entry failed", "action", action, "error", err)
	}
}
