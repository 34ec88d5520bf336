package nexusapi

import (
	"context"
	"net/http"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token pair and the user's role
// assignment set. A rejection surfaces the backend's message via
// *APIError.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh exchanges the refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	var resp RefreshResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: refreshToken}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForgotPassword starts a password reset flow.
func (c *Client) ForgotPassword(ctx context.Context, email string) (*ForgotPasswordResponse, error) {
	var resp ForgotPasswordResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/forgot-password", "", forgotPasswordRequest{Email: email}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResetPassword completes a password reset with the emailed token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/reset-password", "", resetPasswordRequest{Token: token, NewPassword: newPassword}, nil)
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, email, password string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/signup", "", signupRequest{Email: email, Password: password}, nil)
}
