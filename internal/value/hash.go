package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with stored hashes.
const (
	DomainStoryState  = "cosmicds/story-state/v1"
	DomainMeasurement = "cosmicds/measurement/v1"
)

// Hash returns SHA256(domain || 0x00 || canonical(v)) as hex.
func Hash(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, data), nil
}

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashJSON decodes data and hashes its canonical form, so equivalent
// documents with different key order or spacing share a hash.
func HashJSON(domain string, data []byte) (string, error) {
	v, err := Decode(data)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return Hash(domain, v)
}
