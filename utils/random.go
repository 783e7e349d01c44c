package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns n random bytes as an upper-case hex string.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateSecret produces a development-only scan code secret. Codes
// minted with it stop verifying after a restart, which is exactly why
// production must set its own.
func GenerateSecret() (string, error) {
	return GenerateCode(32)
}
