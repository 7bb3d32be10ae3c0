package security

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns n characters drawn uniformly from [a-z0-9].
func RandomString(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(tokenAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

func NewVerificationToken() (string, error) {
	return RandomString(16)
}

// NewCSRFToken returns the double-submit value paired with a session cookie.
func NewCSRFToken() (string, error) {
	return RandomString(32)
}

func NewTwoFactorCode() (string, error) {
	code, err := RandomString(6)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(code), nil
}
