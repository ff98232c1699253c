package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/competeiq/api/internal/config"
)

// ErrInvalidCredentials is returned when the provider rejects a login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrSessionExpired is returned when a stored provider session is no longer
// valid.
var ErrSessionExpired = errors.New("identity session expired")

// IdentityUser is an account as returned by the provider.
type IdentityUser struct {
	ID                string `json:"$id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	EmailVerification bool   `json:"emailVerification"`
}

// IdentitySession is a provider login session. Secret is only returned to
// server-side callers.
type IdentitySession struct {
	ID     string    `json:"$id"`
	UserID string    `json:"userId"`
	Secret string    `json:"secret"`
	Expire time.Time `json:"expire"`
}

// IdentityClient speaks the Appwrite account REST API.
type IdentityClient struct {
	httpClient *http.Client
	endpoint   string
	projectID  string
	apiKey     string
}

func NewIdentityClient(cfg *config.IdentityConfig) *IdentityClient {
	return &IdentityClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		projectID:  cfg.ProjectID,
		apiKey:     cfg.APIKey,
	}
}

func (c *IdentityClient) IsConfigured() bool {
	return c != nil && c.endpoint != "" && c.projectID != ""
}

// CreateAccount registers a new account.
func (c *IdentityClient) CreateAccount(ctx context.Context, email, password, name string) (*IdentityUser, error) {
	body := map[string]string{
		"userId":   "unique()",
		"email":    email,
		"password": password,
		"name":     name,
	}
	var user IdentityUser
	if err := c.do(ctx, http.MethodPost, "/account", "", body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateEmailSession logs in with email and password.
func (c *IdentityClient) CreateEmailSession(ctx context.Context, email, password string) (*IdentitySession, error) {
	body := map[string]string{"email": email, "password": password}
	var sess IdentitySession
	if err := c.do(ctx, http.MethodPost, "/account/sessions/email", "", body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetAccount returns the account owning a session secret.
func (c *IdentityClient) GetAccount(ctx context.Context, secret string) (*IdentityUser, error) {
	var user IdentityUser
	if err := c.do(ctx, http.MethodGet, "/account", secret, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteCurrentSession logs the session out.
func (c *IdentityClient) DeleteCurrentSession(ctx context.Context, secret string) error {
	return c.do(ctx, http.MethodDelete, "/account/sessions/current", secret, nil, nil)
}

func (c *IdentityClient) do(ctx context.Context, method, path, secret string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Appwrite-Project", c.projectID)
	if c.apiKey != "" {
		req.Header.Set("X-Appwrite-Key", c.apiKey)
	}
	if secret != "" {
		req.Header.Set("X-Appwrite-Session", secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && secret != "":
		return ErrSessionExpired
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidCredentials
	case resp.StatusCode >= 300:
		var apiErr struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		return fmt.Errorf("identity API error (status %d): %s", resp.StatusCode, apiErr.Message)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
