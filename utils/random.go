package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomHex returns n random bytes hex-encoded in lower case.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RandomTxHash returns a 0x-prefixed 32-byte hash used for simulated payments.
func RandomTxHash() (string, error) {
	h, err := RandomHex(32)
	if err != nil {
		return "", err
	}
	return "0x" + h, nil
}
