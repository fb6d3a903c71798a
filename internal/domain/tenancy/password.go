package tenancy

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordScheme     = "pbkdf2_sha256"
	passwordIterations = 200_000
	passwordKeyLen     = 32
)

// HashPassword returns "pbkdf2_sha256$<iters>$<salt>$<hex>".
func HashPassword(password string) (string, error) {
	return hashPassword(password, passwordIterations)
}

func hashPassword(password string, iters int) (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	salt := hex.EncodeToString(raw)
	dk := pbkdf2.Key([]byte(password), []byte(salt), iters, passwordKeyLen, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s", passwordScheme, iters, salt, hex.EncodeToString(dk)), nil
}

// VerifyPassword checks password against a stored hash. Malformed hashes
// never verify.
func VerifyPassword(password, stored string) bool {
	parts := strings.SplitN(stored, "$", 4)
	if len(parts) != 4 || parts[0] != passwordScheme {
		return false
	}
	iters, err := strconv.Atoi(parts[1])
	if err != nil || iters <= 0 {
		return false
	}
	want, err := hex.DecodeString(parts[3])
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(password), []byte(parts[2]), iters, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
