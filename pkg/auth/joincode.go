package auth

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// codeAlphabet avoids confusable characters (I, O, 0, 1). Its length of 32
// keeps the modulo mapping below unbiased.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// JoinCodePrefix is prepended to every generated join code.
const JoinCodePrefix = "BETA"

// NormalizeJoinCode canonicalizes user input before lookup: trim, uppercase,
// strip all whitespace. " beta-k7qw9m " and "BETA-K7QW9M" normalize equal.
func NormalizeJoinCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code)
}

// MakeJoinCode generates a human-typable code like "BETA-K7QW9M".
func MakeJoinCode(prefix string) (string, error) {
	if prefix == "" {
		prefix = JoinCodePrefix
	}
	b := make([]byte, 6)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate join code: %w", err)
	}
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = codeAlphabet[int(v)%len(codeAlphabet)]
	}
	return prefix + "-" + string(out), nil
}
