package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// TokenLength is the default number of random bytes in a session token.
const TokenLength = 32

// NewToken generates a URL-safe opaque session token of n random bytes.
// The result is the only secret the client ever holds; it is set in the
// session cookie and never persisted server-side.
func NewToken(n int) (string, error) {
	if n <= 0 {
		n = TokenLength
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Fingerprint computes the storable HMAC-SHA256 binding of a raw token under
// the server-side secret. A database dump alone yields no usable tokens:
// matching a session requires both the raw token and the secret.
func Fingerprint(secret, token string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
