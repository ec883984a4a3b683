package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a digest algorithm as recorded in the catalog.
type Algorithm string

const (
	SHA256 Algorithm = "SHA-256"
	BLAKE3 Algorithm = "BLAKE3"
)

// ParseAlgorithm accepts an algorithm name case-insensitively. An empty name
// selects SHA-256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "SHA-256", "SHA256":
		return SHA256, nil
	case "BLAKE3":
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unknown digest algorithm %q", name)
	}
}

// Sum computes the raw hash of data with alg.
func Sum(alg Algorithm, data []byte) ([]byte, error) {
	switch alg {
	case SHA256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case BLAKE3:
		sum := blake3.Sum256(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("unknown digest algorithm %q", alg)
	}
}

// HashBytes computes the SHA-256 of data as lowercase hex.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
