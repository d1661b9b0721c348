// AngelaMos | 2026
// entity.go

package auth

import (
	"time"
)

// RefreshToken is one link in a rotation family. Rotating a token marks it
// used and points it at its successor; every token minted from one sign-in
// shares a FamilyID.
type RefreshToken struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	TokenHash    string     `db:"token_hash"`
	FamilyID     string     `db:"family_id"`
	ExpiresAt    time.Time  `db:"expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
	IsUsed       bool       `db:"is_used"`
	UsedAt       *time.Time `db:"used_at"`
	RevokedAt    *time.Time `db:"revoked_at"`
	ReplacedByID *string    `db:"replaced_by_id"`
	UserAgent    string     `db:"user_agent"`
	IPAddress    string     `db:"ip_address"`
}

type TokenState int

const (
	TokenActive TokenState = iota
	TokenRevoked
	TokenExpired
	TokenRotated
)

// State classifies the token at now. Revocation wins over expiry, and
// expiry over rotation.
func (t *RefreshToken) State(now time.Time) TokenState {
	switch {
	case t.RevokedAt != nil:
		return TokenRevoked
	case !now.Before(t.ExpiresAt):
		return TokenExpired
	case t.IsUsed:
		return TokenRotated
	}
	return TokenActive
}

// RevokeScope selects which tokens a revocation touches.
type RevokeScope int

const (
	RevokeToken RevokeScope = iota
	RevokeFamily
	RevokePrincipal
)

func (s RevokeScope) column() string {
	switch s {
	case RevokeFamily:
		return "family_id"
	case RevokePrincipal:
		return "user_id"
	}
	return "id"
}
