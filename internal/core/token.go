// AngelaMos | 2026
// token.go

package core

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const opaqueTokenBytes = 32

func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func GenerateRefreshToken() (string, error) {
	return GenerateSecureToken(opaqueTokenBytes)
}

// GenerateBridgeToken returns an opaque single-use value that proves a
// completed OTP verification.
func GenerateBridgeToken() (string, error) {
	return GenerateSecureToken(opaqueTokenBytes)
}

// GenerateNumericCode returns a uniformly distributed decimal code of the
// given length. Leading zeros are kept.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 || length > 12 {
		return "", fmt.Errorf("generate code: invalid length %d", length)
	}

	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for range length {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// HashCode binds a short numeric code to its owner before hashing, so equal
// codes issued to different members never share a stored hash.
func HashCode(ownerID, code string) string {
	mac := hmac.New(sha256.New, []byte(ownerID))
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashToken is the lookup key for a stored opaque token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
