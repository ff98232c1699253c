package apiclient

import (
	"context"

	"github.com/competeiq/api/internal/model"
)

// Login authenticates against the identity passthrough and keeps the
// returned token for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	req := model.LoginRequest{Email: email, Password: password}
	if err := c.checkInput("login", &req); err != nil {
		return nil, err
	}

	var out model.AuthResponse
	if err := c.post(ctx, "login", "/auth/login", req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	c.SetUserName(out.User.Name)
	return &out, nil
}

// Register creates an account and logs in.
func (c *Client) Register(ctx context.Context, email, password, name string) (*model.AuthResponse, error) {
	req := model.RegisterRequest{Email: email, Password: password, Name: name}
	if err := c.checkInput("register", &req); err != nil {
		return nil, err
	}

	var out model.AuthResponse
	if err := c.post(ctx, "register", "/auth/register", req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	c.SetUserName(out.User.Name)
	return &out, nil
}

// Logout ends the provider session and forgets the token.
func (c *Client) Logout(ctx context.Context) error {
	var out model.LogoutResponse
	if err := c.post(ctx, "logout", "/auth/logout", nil, &out); err != nil {
		return err
	}
	c.SetToken("")
	c.SetUserName("")
	return nil
}

// CurrentUser returns the user behind the current token.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var out model.UserResponse
	if err := c.get(ctx, "current_user", "/auth/user", &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}
