package service

import (
	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/repository"
	"github.com/gabrielsolarenergy/server/internal/security"
)

// TwoFactorEnrollment is returned from Setup so the caller can scan the
// provisioning image or type the secret into an authenticator app.
type TwoFactorEnrollment struct {
	Secret  string `json:"secret"`
	QRCode  string `json:"qr_code"`
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

// TwoFactorService drives TOTP enrollment. A generated secret is stored on
// the account immediately but is not enforced at login until the user
// confirms it with a valid code.
type TwoFactorService struct {
	userRepo repository.UserRepository
	totp     *security.TOTPManager
}

func NewTwoFactorService(userRepo repository.UserRepository, totp *security.TOTPManager) *TwoFactorService {
	return &TwoFactorService{userRepo: userRepo, totp: totp}
}

// Setup provisions a fresh secret for the account. Calling it again before
// confirmation replaces the pending secret.
func (s *TwoFactorService) Setup(user *domain.User) (*TwoFactorEnrollment, error) {
	if user.TwoFactorEnabled {
		return nil, ErrAlreadyEnrolled
	}

	secret, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, err
	}
	image, err := s.totp.ProvisioningImage(user.Email, secret)
	if err != nil {
		return nil, err
	}

	user.TwoFactorSecret = secret
	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	return &TwoFactorEnrollment{
		Secret:  secret,
		QRCode:  image,
		Issuer:  s.totp.Issuer(),
		Account: user.Email,
	}, nil
}

// ConfirmEnable verifies a code against the pending secret and, on success,
// turns enforcement on for future logins.
func (s *TwoFactorService) ConfirmEnable(user *domain.User, code string) error {
	if user.TwoFactorSecret == "" {
		return ErrInvalidTwoFactorCode
	}
	if !s.totp.Verify(user.TwoFactorSecret, code) {
		return ErrInvalidTwoFactorCode
	}
	user.TwoFactorEnabled = true
	return s.userRepo.Update(user)
}

// Disable turns enforcement off after the caller proves possession of the
// current secret.
func (s *TwoFactorService) Disable(user *domain.User, code string) error {
	if !user.TwoFactorEnabled {
		return ErrInvalidTwoFactorCode
	}
	if !s.totp.Verify(user.TwoFactorSecret, code) {
		return ErrInvalidTwoFactorCode
	}
	user.TwoFactorEnabled = false
	user.TwoFactorSecret = ""
	return s.userRepo.Update(user)
}

// VerifyLoginCode checks a login-time code for an enrolled account.
func (s *TwoFactorService) VerifyLoginCode(user *domain.User, code string) bool {
	if user.TwoFactorSecret == "" {
		return false
	}
	return s.totp.Verify(user.TwoFactorSecret, code)
}
