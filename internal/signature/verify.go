// Package signature implements the inbound webhook authentication proof:
// HMAC-SHA256 over the raw request body, hex-encoded, compared in constant
// time.
package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/webhookhub/webhookhub/errs"
)

// Header names the HTTP header carrying the hex signature.
const Header = "X-Signature"

// SecretLength is the length of the lowercase hex secret handed to sources.
const SecretLength = 64

// NewSecret mints a 64-character lowercase hex secret.
func NewSecret() (string, error) {
	raw := make([]byte, SecretLength/2)
	if _, err := rand.Read(raw); err != nil {
		return "", errs.New("signature", errs.CodeInternal,
			errs.WithMessage("generate secret"), errs.WithCause(err))
	}
	return hex.EncodeToString(raw), nil
}

// Sign computes the lowercase hex HMAC-SHA256 of body. The secret's hex
// string bytes are the HMAC key directly — a cross-module wire convention,
// not a decode oversight.
func Sign(secretHex string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secretHex))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks providedHex against the expected digest of body. The
// comparison runs in time dependent only on the fixed digest length; any
// length or byte mismatch yields an unauthorized error that names neither
// the secret nor the expected digest.
func Verify(secretHex string, body []byte, providedHex string) error {
	expected := Sign(secretHex, body)
	if len(providedHex) != len(expected) {
		return errs.New("signature", errs.CodeUnauthorized, errs.WithMessage("invalid signature"))
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(providedHex)) != 1 {
		return errs.New("signature", errs.CodeUnauthorized, errs.WithMessage("invalid signature"))
	}
	return nil
}
