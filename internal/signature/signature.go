// Package signature signs and verifies webhook bodies with HMAC-SHA256.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Prefix is an optional scheme marker some senders put before the digest.
const Prefix = "sha256="

var (
	// ErrNoSecret is returned when no shared secret is configured.
	// Verification fails closed: every request is rejected.
	ErrNoSecret = errors.New("signature: shared secret not configured")

	// ErrMissing is returned when the request carries no signature.
	ErrMissing = errors.New("signature: missing")

	// ErrMismatch is returned when the signature does not match the body.
	ErrMismatch = errors.New("signature: mismatch")
)

// Verifier checks signatures against a fixed shared secret.
// The secret is read-only after construction, so a Verifier is safe for concurrent use.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for the given secret. An empty secret yields
// a Verifier that rejects everything with ErrNoSecret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret))}
}

// Verify reports whether header is the hex HMAC-SHA256 of body under the secret.
func (v *Verifier) Verify(body []byte, header string) error {
	if err := v.CheckHeader(header); err != nil {
		return err
	}

	sig := trimPrefix(header)

	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrMismatch
	}

	// hmac.Equal runs in constant time for equal-length inputs.
	if !hmac.Equal(got, Compute(v.secret, body)) {
		return ErrMismatch
	}
	return nil
}

// CheckHeader returns ErrNoSecret or ErrMissing when no body could verify
// against header, so callers can reject before reading the body.
func (v *Verifier) CheckHeader(header string) error {
	if v == nil || len(v.secret) == 0 {
		return ErrNoSecret
	}
	if trimPrefix(header) == "" {
		return ErrMissing
	}
	return nil
}

func trimPrefix(header string) string {
	sig := strings.TrimSpace(header)
	if len(sig) >= len(Prefix) && strings.EqualFold(sig[:len(Prefix)], Prefix) {
		sig = sig[len(Prefix):]
	}
	return sig
}

// Compute returns the raw HMAC-SHA256 digest of body keyed by secret.
func Compute(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// Sign returns the lowercase hex signature for body, as sent in the signature header.
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(Compute([]byte(strings.TrimSpace(secret)), body))
}
