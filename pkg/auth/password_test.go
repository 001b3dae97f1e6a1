package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, password := range []string{"hunter22", "correct horse battery staple", "päss wörd ✓"} {
		record, err := HashPassword(password)
		require.NoError(t, err)
		require.True(t, VerifyPassword(password, record), "freshly hashed password must verify")
		require.False(t, VerifyPassword(password+"x", record), "wrong password must not verify")
	}
}

func TestHashPassword_RecordFormat(t *testing.T) {
	t.Parallel()

	record, err := HashPassword("hunter22")
	require.NoError(t, err)

	parts := strings.Split(record, "$")
	require.Len(t, parts, 4)
	require.Equal(t, "pbkdf2_sha256", parts[0])
	require.Equal(t, "100000", parts[1])

	salt, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	require.Len(t, salt, 16)

	key, err := base64.RawURLEncoding.DecodeString(parts[3])
	require.NoError(t, err)
	require.Len(t, key, 32)
}

func TestHashPassword_DistinctSalts(t *testing.T) {
	t.Parallel()

	r1, err := HashPassword("hunter22")
	require.NoError(t, err)
	r2, err := HashPassword("hunter22")
	require.NoError(t, err)

	require.NotEqual(t, r1, r2, "two hashes of the same password must differ")
	require.True(t, VerifyPassword("hunter22", r1))
	require.True(t, VerifyPassword("hunter22", r2))
}

func TestVerifyPassword_RejectsMalformedRecords(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"not-a-record",
		"pbkdf2_sha256$100000$onlythree",
		"pbkdf2_sha256$100000$a$b$c",
		"bcrypt$100000$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"pbkdf2_sha256$NaN$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"pbkdf2_sha256$100000$!!!$aGFzaA",
		"pbkdf2_sha256$100000$c2FsdHNhbHRzYWx0c2FsdA$!!!",
	}
	for _, record := range cases {
		require.False(t, VerifyPassword("hunter22", record), "record %q must not verify", record)
	}
}

func TestVerifyPassword_IterationFloor(t *testing.T) {
	t.Parallel()

	// Forge a record below the floor whose hash component is otherwise
	// correct. It must still be rejected.
	salt := []byte("0123456789abcdef")
	lowIters := 1000
	key := pbkdf2.Key([]byte("hunter22"), salt, lowIters, 32, sha256.New)
	forged := fmt.Sprintf("pbkdf2_sha256$%d$%s$%s",
		lowIters,
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(key),
	)
	require.False(t, VerifyPassword("hunter22", forged))

	// At the floor the same construction verifies.
	key = pbkdf2.Key([]byte("hunter22"), salt, iterationFloor, 32, sha256.New)
	atFloor := fmt.Sprintf("pbkdf2_sha256$%d$%s$%s",
		iterationFloor,
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(key),
	)
	require.True(t, VerifyPassword("hunter22", atFloor))
}
