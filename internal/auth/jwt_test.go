// AngelaMos | 2026
// jwt_test.go

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assocly/memberaccess/internal/core"
)

func TestJWTManager_ExpiredToken(t *testing.T) {
	m := newTestJWT(t)
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	token, exp, err := m.CreateAccessToken(AccessTokenClaims{
		UserID: "p-1",
		Roles:  []string{"admin"},
	})
	require.NoError(t, err)

	claims, err := m.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, claims.Roles)
	assert.WithinDuration(t, exp, claims.ExpiresAt, time.Second)

	m.now = func() time.Time { return exp.Add(time.Minute) }
	_, err = m.ParseAccessToken(token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
	assert.NotErrorIs(t, err, core.ErrTokenInvalid)
}

func TestJWTManager_RejectsGarbage(t *testing.T) {
	m := newTestJWT(t)
	_, err := m.ParseAccessToken("not.a.jwt")
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestJWTManager_JWKSIsStable(t *testing.T) {
	m := newTestJWT(t)

	rec := httptest.NewRecorder()
	m.JWKSHandler()(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Use string `json:"use"`
			D   string `json:"d"`
		} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Keys, 1)
	assert.Equal(t, "EC", body.Keys[0].Kty)
	assert.Equal(t, "sig", body.Keys[0].Use)
	assert.Len(t, body.Keys[0].Kid, 16)
	assert.Empty(t, body.Keys[0].D)

	reloaded, err := NewJWTManager(m.cfg)
	require.NoError(t, err)
	kid, ok := reloaded.verify.KeyID()
	require.True(t, ok)
	assert.Equal(t, body.Keys[0].Kid, kid)
}
