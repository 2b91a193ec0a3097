package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Prefix    = "pbkdf2"
	legacyPrefix    = "sha256"
	pbkdf2KeyLen    = 32
	pbkdf2SaltBytes = 16
)

// HashPassword derives a PBKDF2-SHA256 hash of password using a fresh
// random salt and iterations rounds, encoded as
// "pbkdf2$<iterations>$<salt-b64>$<hash-b64>" (spec.md §9 — password
// storage upgraded from a flat SHA-256 digest to salted PBKDF2).
func HashPassword(password string, iterations int) (string, error) {
	salt := make([]byte, pbkdf2SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(password), salt, iterations, pbkdf2KeyLen, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s",
		pbkdf2Prefix, iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(derived)), nil
}

// VerifyPassword checks password against an encoded hash produced by
// HashPassword, or against a legacy flat SHA-256 hex digest. It reports
// whether the password matched and, separately, whether the stored hash
// should be upgraded to the current PBKDF2 format.
func VerifyPassword(password, encoded string) (matched bool, needsUpgrade bool) {
	if strings.HasPrefix(encoded, pbkdf2Prefix+"$") {
		return verifyPBKDF2(password, encoded), false
	}
	// Legacy format: a bare hex-encoded SHA-256 digest with no salt.
	sum := sha256.Sum256([]byte(password))
	legacy := fmt.Sprintf("%x", sum)
	ok := subtle.ConstantTimeCompare([]byte(legacy), []byte(encoded)) == 1
	return ok, ok
}

func verifyPBKDF2(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != pbkdf2Prefix {
		return false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
