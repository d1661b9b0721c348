// AngelaMos | 2026
// sealer.go

package vault

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
)

var ErrEmpty = errors.New("vault: empty payload")

// Sealer encrypts small server-only secrets at rest with a single age X25519
// identity. Anything sealed can be opened only by the holder of that identity.
type Sealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

func NewSealer(identity string) (*Sealer, error) {
	id, err := age.ParseX25519Identity(identity)
	if err != nil {
		return nil, fmt.Errorf("parse vault identity: %w", err)
	}

	return &Sealer{
		identity:  id,
		recipient: id.Recipient(),
	}, nil
}

// GenerateIdentity returns a fresh "AGE-SECRET-KEY-1..." string suitable for
// the vault.identity setting.
func GenerateIdentity() (string, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generate vault identity: %w", err)
	}
	return id.String(), nil
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, ErrEmpty
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	return buf.Bytes(), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, ErrEmpty
	}

	r, err := age.Decrypt(bytes.NewReader(sealed), s.identity)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	return plaintext, nil
}
