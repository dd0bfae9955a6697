package models

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// SameIdentity compares two wallet identities case-insensitively.
func SameIdentity(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

// NormalizeIdentity returns the canonical key form of an identity.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// IsAddress reports whether s looks like a 20-byte hex address.
func IsAddress(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// ChecksumAddress renders an address in EIP-55 mixed case. Inputs that are
// not addresses are returned unchanged.
func ChecksumAddress(addr string) string {
	if !IsAddress(addr) {
		return addr
	}
	lower := strings.ToLower(strings.TrimSpace(addr))[2:]

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte("0x" + lower)
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i+2] = c - 32
		}
	}
	return string(out)
}
