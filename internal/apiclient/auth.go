// AngelaMos | 2026
// auth.go

package apiclient

import (
	"context"
	"fmt"

	"github.com/assocly/memberaccess/internal/auth"
	"github.com/assocly/memberaccess/internal/otp"
)

func (c *Client) RequestCode(
	ctx context.Context,
	phone string,
) (*otp.RequestCodeResponse, error) {
	var resp otp.RequestCodeResponse
	err := c.post(ctx, "/v1/otp/request", otp.RequestCodeRequest{Phone: phone}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) VerifyCode(
	ctx context.Context,
	phone, code string,
) (*otp.VerifyCodeResponse, error) {
	var resp otp.VerifyCodeResponse
	err := c.post(ctx, "/v1/otp/verify", otp.VerifyCodeRequest{Phone: phone, Code: code}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExchangeBridgeToken trades a verified bridge token for a session and
// keeps it on the client.
func (c *Client) ExchangeBridgeToken(
	ctx context.Context,
	bridgeToken, principalID string,
) (*otp.ExchangeResponse, error) {
	var resp otp.ExchangeResponse
	err := c.post(ctx, "/v1/session/exchange", otp.ExchangeRequest{
		BridgeToken: bridgeToken,
		PrincipalID: principalID,
	}, &resp)
	if err != nil {
		return nil, err
	}

	c.SetSession(resp.User.ID, resp.CredentialRef)
	return &resp, nil
}

func (c *Client) Login(
	ctx context.Context,
	email, password string,
) (*auth.AuthResponse, error) {
	var resp auth.AuthResponse
	err := c.post(ctx, "/v1/auth/login", auth.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}

	c.SetSession(resp.User.ID, resp.Tokens)
	return &resp, nil
}

func (c *Client) Refresh(ctx context.Context) (*auth.AuthResponse, error) {
	token := c.refreshToken()
	if token == "" {
		return nil, fmt.Errorf("refresh: no session")
	}

	var resp auth.AuthResponse
	err := c.post(ctx, "/v1/auth/refresh", auth.RefreshRequest{RefreshToken: token}, &resp)
	if err != nil {
		return nil, err
	}

	c.SetSession(resp.User.ID, resp.Tokens)
	return &resp, nil
}

// Logout revokes the session server side and forgets it locally. The local
// session is dropped even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.clearSession()

	if c.AccessToken() == "" {
		return nil
	}
	body := auth.LogoutRequest{RefreshToken: c.refreshToken()}
	return c.post(ctx, "/v1/auth/logout", body, nil)
}
