// AngelaMos | 2026
// entity.go

package user

import (
	"time"
)

// User is a credential principal. Staff sign in with their own password;
// member principals are provisioned on first OTP sign-in and their password
// never leaves the server.
type User struct {
	ID           string     `db:"id"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	Name         string     `db:"name"`
	Kind         string     `db:"kind"`
	TokenVersion int        `db:"token_version"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at"`
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

const (
	KindStaff  = "staff"
	KindMember = "member"
)
