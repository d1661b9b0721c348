// AngelaMos | 2026
// sealer_test.go

package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSealer(t *testing.T) *Sealer {
	t.Helper()
	id, err := GenerateIdentity()
	require.NoError(t, err)

	s, err := NewSealer(id)
	require.NoError(t, err)
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := newSealer(t)

	sealed, err := s.Seal([]byte("server-only-secret"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "server-only-secret")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "server-only-secret", string(opened))
}

func TestSealer_OtherIdentityCannotOpen(t *testing.T) {
	sealed, err := newSealer(t).Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = newSealer(t).Open(sealed)
	assert.Error(t, err)
}

func TestSealer_RejectsEmpty(t *testing.T) {
	s := newSealer(t)

	_, err := s.Seal(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = s.Open(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestNewSealer_InvalidIdentity(t *testing.T) {
	_, err := NewSealer("not-a-key")
	assert.Error(t, err)
}
