package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/MrEthical07/storeauth/account"
)

// SecretHasher is the slice of password.Argon2 needed to protect OTP codes.
type SecretHasher interface {
	Hash(secret string) (string, error)
}

// NewOTP returns a uniformly random decimal code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// IssueChallenge draws a fresh code, hashes it and returns the plaintext
// (for the email only) with the challenge to persist.
func IssueChallenge(h SecretHasher, digits int, ttl time.Duration, now time.Time) (string, *account.Challenge, error) {
	code, err := NewOTP(digits)
	if err != nil {
		return "", nil, err
	}
	hash, err := h.Hash(code)
	if err != nil {
		return "", nil, err
	}
	return code, &account.Challenge{Hash: hash, ExpiresAt: now.Add(ttl)}, nil
}

// TokenDigest is the form in which a refresh token is kept in its session
// family: the hex SHA-256 of the signed token string.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
