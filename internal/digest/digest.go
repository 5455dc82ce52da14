// Package digest maps canonical text to fixed-length lowercase hex digests.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"slices"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Algorithm names accepted by ByName and recorded in fingerprint records.
const (
	SHA256     = "sha256"
	BLAKE2b256 = "blake2b-256"
	SHA3256    = "sha3-256"
)

// Default is the algorithm used when none is configured.
const Default = SHA256

// ErrUnknownAlgorithm is returned by ByName for unsupported names.
var ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

// Hasher turns canonical text into a digest.
type Hasher interface {
	// Name returns the algorithm name.
	Name() string

	// Digest returns the lowercase hex digest of text. The length is fixed
	// for a given algorithm.
	Digest(text string) string
}

type hasher struct {
	name    string
	newHash func() hash.Hash
}

func (h hasher) Name() string {
	return h.name
}

func (h hasher) Digest(text string) string {
	sum := h.newHash()
	// hash.Hash writes never fail.
	_, _ = sum.Write([]byte(text))
	return hex.EncodeToString(sum.Sum(nil))
}

var registry = map[string]Hasher{
	SHA256:  hasher{name: SHA256, newHash: sha256.New},
	SHA3256: hasher{name: SHA3256, newHash: sha3.New256},
	BLAKE2b256: hasher{name: BLAKE2b256, newHash: func() hash.Hash {
		// New256 only fails for keys longer than 64 bytes.
		h, _ := blake2b.New256(nil)
		return h
	}},
}

// New returns the default SHA-256 hasher.
func New() Hasher {
	return registry[Default]
}

// ByName returns the hasher for the named algorithm. Names are case-insensitive;
// the empty name selects Default.
func ByName(name string) (Hasher, error) {
	if name == "" {
		return New(), nil
	}
	h, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownAlgorithm, name, strings.Join(Algorithms(), ", "))
	}
	return h, nil
}

// Algorithms returns the supported algorithm names in sorted order.
func Algorithms() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
