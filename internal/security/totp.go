package security

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters match what authenticator apps assume by default; changing
// them would break provisioning for already-enrolled accounts.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type TOTPManager struct {
	issuer string
}

func NewTOTPManager(issuer string) *TOTPManager {
	return &TOTPManager{issuer: issuer}
}

func (m *TOTPManager) Issuer() string { return m.issuer }

// GenerateSecret returns a fresh base32 shared secret for enrollment.
func (m *TOTPManager) GenerateSecret(email string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: email,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// ProvisioningImage renders the otpauth URI for (email, secret) as a PNG QR
// code and returns it as a data URI. Pure function, no side effects.
func (m *TOTPManager) ProvisioningImage(email, secret string) (string, error) {
	key, err := otp.NewKeyFromURL(m.provisioningURI(email, secret))
	if err != nil {
		return "", err
	}
	img, err := key.Image(256, 256)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Verify checks a submitted 6-digit code against the shared secret with a
// tolerance of one time step before and after now.
func (m *TOTPManager) Verify(secret, code string) bool {
	return m.verifyAt(secret, code, time.Now())
}

func (m *TOTPManager) verifyAt(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totpOpts)
	return err == nil && ok
}

func (m *TOTPManager) provisioningURI(email, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", m.issuer)
	v.Set("period", fmt.Sprintf("%d", totpOpts.Period))
	v.Set("digits", totpOpts.Digits.String())
	v.Set("algorithm", totpOpts.Algorithm.String())
	return fmt.Sprintf("otpauth://totp/%s:%s?%s",
		url.PathEscape(m.issuer), url.PathEscape(email), v.Encode())
}
