package service

import "errors"

// Expected failure conditions surfaced by the auth and chat services. The
// HTTP layer translates these into stable caller-visible categories; anything
// not listed here is treated as an internal error and never shown verbatim.
var (
	ErrEmailAlreadyActive    = errors.New("email already registered and active")
	ErrInvalidOrExpiredLink  = errors.New("invalid or expired link")
	ErrAccountNotFound       = errors.New("account not found")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountNotVerified    = errors.New("account not verified")
	ErrInvalidTwoFactorCode  = errors.New("invalid two-factor code")
	ErrAlreadyEnrolled       = errors.New("two-factor already enabled")
	ErrSessionPersistFailure = errors.New("failed to persist session")
	ErrSessionExpired        = errors.New("session expired")
	ErrTokenPurposeMismatch  = errors.New("token purpose mismatch")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrInactiveAccount       = errors.New("account deactivated")
	ErrForbidden             = errors.New("insufficient role")
)
