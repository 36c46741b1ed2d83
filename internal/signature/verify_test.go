package signature

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/webhookhub/webhookhub/errs"
)

const testSecret = "8e3f1a4b9c2d5e6f8e3f1a4b9c2d5e6f8e3f1a4b9c2d5e6f8e3f1a4b9c2d5e6f"

func TestSignKeysOnLiteralSecretString(t *testing.T) {
	// HMAC key is the ASCII hex string itself, not its decoded bytes.
	body := []byte(`{"ref":"main"}`)
	sig := Sign(testSecret, body)
	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig))
	}
	if sig != Sign(testSecret, body) {
		t.Fatal("signing must be deterministic")
	}
	if sig == Sign(strings.ToUpper(testSecret), body) {
		t.Fatal("key must be the literal secret string; case changes the digest")
	}
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	body := []byte(`{"ref":"main"}`)
	if err := Verify(testSecret, body, Sign(testSecret, body)); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifyRejectsMismatches(t *testing.T) {
	body := []byte(`{"ref":"main"}`)
	valid := Sign(testSecret, body)

	cases := map[string]string{
		"empty":         "",
		"truncated":     valid[:63],
		"wrong byte":    flipLastHexChar(valid),
		"wrong body":    Sign(testSecret, []byte(`{"ref":"dev"}`)),
		"overlong":      valid + "00",
		"garbage input": strings.Repeat("z", 64),
	}
	for name, provided := range cases {
		err := Verify(testSecret, body, provided)
		if err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
		if errs.CodeOf(err) != errs.CodeUnauthorized {
			t.Fatalf("%s: expected unauthorized, got %v", name, err)
		}
		if strings.Contains(err.Error(), testSecret) || strings.Contains(err.Error(), valid) {
			t.Fatalf("%s: error must not leak secret or expected digest: %v", name, err)
		}
	}
}

func TestNewSecretShape(t *testing.T) {
	secret, err := NewSecret()
	if err != nil {
		t.Fatalf("new secret: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(secret) {
		t.Fatalf("secret must be 64 lowercase hex chars, got %q", secret)
	}
	other, err := NewSecret()
	if err != nil {
		t.Fatalf("new secret: %v", err)
	}
	if secret == other {
		t.Fatal("secrets must not repeat")
	}
}

func flipLastHexChar(s string) string {
	last := s[len(s)-1]
	replacement := byte('0')
	if last == '0' {
		replacement = '1'
	}
	return s[:len(s)-1] + string(replacement)
}

func TestVerifyErrorIsEnvelope(t *testing.T) {
	err := Verify(testSecret, []byte("x"), "nope")
	var e *errs.E
	if !errors.As(err, &e) {
		t.Fatalf("expected errs envelope, got %T", err)
	}
}
