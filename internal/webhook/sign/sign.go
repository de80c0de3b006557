// Package sign implements the webhook secret and signature primitives.
//
// The HMAC key is SHA-256(secret), not the raw secret. This is reproduced
// verbatim from the interface contract this package implements; it has not
// been "fixed" even though HMAC(secret, payload) would be the more common
// convention, because changing it would break any integrator who already
// derived the key from the documented formula.
package sign

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const secretPrefix = "whsec_"

// GenerateSecret returns a new plaintext endpoint secret. Callers must show
// it to the user exactly once and store only HashSecret(secret).
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sign: generate secret: %w", err)
	}
	return secretPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashSecret derives the persisted secret_hash from a plaintext secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Sign computes the hex-encoded HMAC-SHA256 of payload keyed by secretHash
// (the stored hash, not the original secret).
func Sign(secretHash string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secretHash))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader formats the full X-Webhook-Signature header value.
func SignatureHeader(secretHash string, payload []byte) string {
	return "sha256=" + Sign(secretHash, payload)
}

// Verify reports whether header (the full "sha256=<hex>" value) matches the
// expected signature for payload under secretHash, using a constant-time
// comparison.
func Verify(secretHash string, payload []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	got, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(Sign(secretHash, payload))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}
