// Package digest maps keys to the fixed-length identifiers used to name and
// index their version chains.
package digest

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/minio/highwayhash"
	"golang.org/x/crypto/sha3"
)

// Func derives the identifier for a key.
type Func func(key string) string

const (
	// NameSHA3 selects SHA3-256, hex encoded.
	NameSHA3 = "sha3"
	// NameHighway selects HighwayHash-256, hex encoded.
	NameHighway = "highway"
	// NameNone uses keys as-is.
	NameNone = "none"
)

var highwayKey = []byte("0123456789ABCDEF0123456789ABCDEF")

// SHA3 returns the hex SHA3-256 of key.
func SHA3(key string) string {
	sum := sha3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// HighwayHash returns the hex HighwayHash-256 of key.
func HighwayHash(key string) string {
	sum := highwayhash.Sum([]byte(key), highwayKey)
	return hex.EncodeToString(sum[:])
}

// Identity returns key unchanged.
func Identity(key string) string {
	return key
}

// ByName resolves a digest by its configuration name; empty means SHA3.
func ByName(name string) (Func, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameSHA3, "sha3-256", "sha3_256":
		return SHA3, nil
	case NameHighway, "highwayhash":
		return HighwayHash, nil
	case NameNone, "raw":
		return Identity, nil
	}
	return nil, fmt.Errorf("digest: unsupported %q", name)
}
