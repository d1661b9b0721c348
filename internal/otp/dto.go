// AngelaMos | 2026
// dto.go

package otp

import (
	"time"

	"github.com/assocly/memberaccess/internal/auth"
)

type RequestCodeRequest struct {
	Phone string `json:"phone" validate:"required,min=6,max=32"`
}

type VerifyCodeRequest struct {
	Phone string `json:"phone" validate:"required,min=6,max=32"`
	Code  string `json:"code"  validate:"required,max=12"`
}

type ExchangeRequest struct {
	BridgeToken string `json:"bridge_token" validate:"required,max=128"`
	PrincipalID string `json:"principal_id" validate:"required,max=64"`
}

type TenantRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RequestCodeResponse struct {
	DisplayName string    `json:"display_name"`
	Tenant      TenantRef `json:"tenant"`
	ExpiresAt   time.Time `json:"expires_at"`
	Code        string    `json:"code,omitempty"`
}

type VerifyCodeResponse struct {
	BridgeToken string    `json:"bridge_token"`
	PrincipalID string    `json:"principal_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ExchangeResponse carries the session issued for the member principal.
type ExchangeResponse struct {
	CredentialRef auth.TokenResponse `json:"credential_ref"`
	User          auth.UserResponse  `json:"user"`
}

func ToRequestCodeResponse(r *RequestResult) RequestCodeResponse {
	return RequestCodeResponse{
		DisplayName: r.DisplayName,
		Tenant: TenantRef{
			ID:   r.TenantID,
			Name: r.TenantName,
		},
		ExpiresAt: r.ExpiresAt,
		Code:      r.Code,
	}
}

func ToVerifyCodeResponse(r *VerifyResult) VerifyCodeResponse {
	return VerifyCodeResponse{
		BridgeToken: r.BridgeToken,
		PrincipalID: r.PrincipalID,
		ExpiresAt:   r.ExpiresAt,
	}
}

func ToExchangeResponse(r *auth.AuthResponse) ExchangeResponse {
	return ExchangeResponse{
		CredentialRef: r.Tokens,
		User:          r.User,
	}
}
