package objects

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"regexp"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
)

// Object is the result of storing bytes: its content address, the
// repository-relative path derived from it, and its size.
type Object struct {
	Hash string `json:"hash"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Address returns the hex SHA-256 digest of data.
func Address(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Hasher returns a hash.Hash matching Address, for streaming reads.
func Hasher() hash.Hash { return sha256.New() }

// AddressOf streams r through the content hash.
func AddressOf(r io.Reader) (string, error) {
	h := Hasher()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

var (
	hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
	pathPattern = regexp.MustCompile(`^objects/([0-9a-f]{2})/([0-9a-f]{64})$`)
)

// PathFor returns "objects/<hash[0:2]>/<hash>".
func PathFor(hash string) string {
	return fmt.Sprintf("objects/%s/%s", hash[:2], hash)
}

// ValidHash reports whether s looks like a content address.
func ValidHash(s string) bool { return hashPattern.MatchString(s) }

// ParsePath validates a repository path and returns the hash it names.
// Anything but the exact fan-out layout is rejected, which also rules out
// traversal outside the repository.
func ParsePath(path string) (string, error) {
	m := pathPattern.FindStringSubmatch(path)
	if m == nil || m[2][:2] != m[1] {
		return "", custody.Invalid("malformed object path %q", path)
	}
	return m[2], nil
}
