package security

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestTOTPToleranceWindowBoundary(t *testing.T) {
	m := NewTOTPManager("Gabriel Solar Energy")
	secret, err := m.GenerateSecret("a@x.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}

	step := time.Duration(totpOpts.Period) * time.Second
	now := time.Now()
	code, err := totp.GenerateCodeCustom(secret, now, totpOpts)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}

	for _, tc := range []struct {
		offset time.Duration
		want   bool
	}{
		{-2 * step, false},
		{-step, true},
		{0, true},
		{step, true},
		{2 * step, false},
	} {
		if got := m.verifyAt(secret, code, now.Add(tc.offset)); got != tc.want {
			t.Fatalf("verify at offset %v: got %v, want %v", tc.offset, got, tc.want)
		}
	}
}

func TestTOTPRejectsGarbageCode(t *testing.T) {
	m := NewTOTPManager("Gabriel Solar Energy")
	secret, err := m.GenerateSecret("a@x.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	if m.Verify(secret, "000000") && m.Verify(secret, "999999") {
		t.Fatal("two arbitrary codes both valid: verification is broken")
	}
	if m.Verify(secret, "not-a-code") {
		t.Fatal("non-numeric code must not verify")
	}
}

func TestProvisioningImageAndURI(t *testing.T) {
	m := NewTOTPManager("Gabriel Solar Energy")

	uri := m.provisioningURI("a@x.com", "JBSWY3DPEHPK3PXP")
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Fatalf("unexpected URI scheme: %s", uri)
	}
	if !strings.Contains(uri, "secret=JBSWY3DPEHPK3PXP") {
		t.Fatalf("URI missing secret: %s", uri)
	}

	img, err := m.ProvisioningImage("a@x.com", "JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("provisioning image: %v", err)
	}
	if !strings.HasPrefix(img, "data:image/png;base64,") {
		t.Fatalf("expected PNG data URI, got %.40s", img)
	}
}
