package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token purposes. A token minted for one purpose never validates against a
// check expecting another one.
const (
	PurposeAccess  = "access"
	PurposeRefresh = "refresh"
	PurposeVerify  = "verify"
	PurposeReset   = "reset"
)

const (
	VerifyTokenTTL = 24 * time.Hour
	ResetTokenTTL  = 15 * time.Minute
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	TokenType string `json:"token_type"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	issuer      string
	audience    string
	tokenSecret []byte
	emailSecret []byte
}

// NewJWTManager signs access/refresh tokens with tokenSecret and the
// single-use email tokens with emailSecret, so a leaked mail link can never
// be forged into a session credential.
func NewJWTManager(issuer, audience, tokenSecret, emailSecret string) *JWTManager {
	return &JWTManager{
		issuer:      issuer,
		audience:    audience,
		tokenSecret: []byte(tokenSecret),
		emailSecret: []byte(emailSecret),
	}
}

func (m *JWTManager) SignAccessToken(userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	return m.sign(PurposeAccess, userID.String(), role, ttl, m.tokenSecret)
}

func (m *JWTManager) SignRefreshToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	return m.sign(PurposeRefresh, userID.String(), "", ttl, m.tokenSecret)
}

// SignEmailToken mints a verify- or reset-purpose token whose subject is the
// account email. Lifetime depends on the purpose: 24h for verification links,
// 15m for password-reset links.
func (m *JWTManager) SignEmailToken(email, purpose string) (string, error) {
	if purpose != PurposeVerify && purpose != PurposeReset {
		return "", ErrInvalidToken
	}
	ttl := VerifyTokenTTL
	if purpose == PurposeReset {
		ttl = ResetTokenTTL
	}
	return m.sign(purpose, email, "", ttl, m.emailSecret)
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, m.tokenSecret, PurposeAccess)
}

func (m *JWTManager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.parse(raw, m.tokenSecret, PurposeRefresh)
}

// ParseEmailToken validates a verify/reset token and returns the subject
// email. Signature, expiry and purpose failures all come back as
// ErrInvalidToken so callers cannot distinguish them.
func (m *JWTManager) ParseEmailToken(raw, purpose string) (string, error) {
	claims, err := m.parse(raw, m.emailSecret, purpose)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (m *JWTManager) sign(purpose, subject, role string, ttl time.Duration, secret []byte) (string, error) {
	claims := Claims{
		TokenType: purpose,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *JWTManager) parse(raw string, secret []byte, purpose string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
