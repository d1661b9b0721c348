// AngelaMos | 2026
// password.go

package core

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const saltLength = 16

var errMalformedHash = errors.New("malformed password hash")

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
}

// currentParams is what new hashes use. Hashes made with anything else are
// upgraded on the next successful sign-in.
var currentParams = argonParams{
	memory:  64 * 1024,
	time:    1,
	threads: 4,
	keyLen:  32,
}

func (p argonParams) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
}

type passwordHash struct {
	params argonParams
	salt   []byte
	key    []byte
}

// String renders the PHC form: $argon2id$v=19$m=..,t=..,p=..$salt$key.
func (h passwordHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.memory,
		h.params.time,
		h.params.threads,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key),
	)
}

func parsePasswordHash(encoded string) (passwordHash, error) {
	var h passwordHash

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return h, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return h, fmt.Errorf("%w: version: %w", errMalformedHash, err)
	}
	if version != argon2.Version {
		return h, fmt.Errorf("%w: unsupported version %d", errMalformedHash, version)
	}

	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&h.params.memory,
		&h.params.time,
		&h.params.threads,
	)
	if err != nil {
		return h, fmt.Errorf("%w: params: %w", errMalformedHash, err)
	}

	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return h, fmt.Errorf("%w: salt: %w", errMalformedHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return h, fmt.Errorf("%w: key: %w", errMalformedHash, err)
	}

	//nolint:gosec // G115: argon2id keys are a few dozen bytes
	h.params.keyLen = uint32(len(h.key))

	return h, nil
}

func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	return passwordHash{
		params: currentParams,
		salt:   salt,
		key:    currentParams.derive(password, salt),
	}.String(), nil
}

func VerifyPassword(password, encoded string) (bool, error) {
	h, err := parsePasswordHash(encoded)
	if err != nil {
		return false, err
	}

	candidate := h.params.derive(password, h.salt)
	return subtle.ConstantTimeCompare(h.key, candidate) == 1, nil
}

// dummyHash is verified against when the account does not exist, so an
// unknown email costs as much as a wrong password.
var dummyHash = sync.OnceValue(func() string {
	h, err := HashPassword("timing-equaliser")
	if err != nil {
		panic(fmt.Sprintf("core: generate dummy hash: %v", err))
	}
	return h
})

// VerifyPasswordTimingSafe always runs one argon2id derivation. A nil or
// empty encoded hash never verifies. When the stored hash uses outdated
// parameters and the password matches, rehash carries its replacement.
func VerifyPasswordTimingSafe(
	password string,
	encoded *string,
) (valid bool, rehash string, err error) {
	if encoded == nil || *encoded == "" {
		//nolint:errcheck // only spends the time
		_, _ = VerifyPassword(password, dummyHash())
		return false, "", nil
	}

	valid, err = VerifyPassword(password, *encoded)
	if err != nil || !valid {
		return false, "", err
	}

	if h, _ := parsePasswordHash(*encoded); h.params != currentParams {
		if upgraded, hashErr := HashPassword(password); hashErr == nil {
			rehash = upgraded
		}
	}

	return true, rehash, nil
}
