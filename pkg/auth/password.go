package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	algorithmTag = "pbkdf2_sha256"

	// pbkdf2Iterations is used for new hashes. iterationFloor is the minimum
	// accepted on verify, so a tampered record cannot downgrade the work factor.
	pbkdf2Iterations = 100000
	iterationFloor   = 50000

	saltLength = 16
	keyLength  = 32
)

// HashPassword derives a fresh credential record for the given password.
//
// Stored format: pbkdf2_sha256$<iters>$<salt_b64url>$<hash_b64url>
// It only fails when the system RNG is unavailable, which callers should
// treat as a server error rather than a user error.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLength, sha256.New)

	return fmt.Sprintf("%s$%d$%s$%s",
		algorithmTag,
		pbkdf2Iterations,
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches the stored credential
// record. Malformed records, unknown algorithm tags and iteration counts
// below the floor all verify as false; this function never panics and never
// reveals why a record was rejected.
func VerifyPassword(password, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 {
		return false
	}
	if parts[0] != algorithmTag {
		return false
	}

	iters, err := strconv.Atoi(parts[1])
	if err != nil || iters < iterationFloor {
		return false
	}

	salt, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	expected, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil || len(expected) == 0 {
		return false
	}

	actual := pbkdf2.Key([]byte(password), salt, iters, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(actual, expected) == 1
}
