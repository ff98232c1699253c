// Package auth validates bearer tokens and issues the service's own tokens.
package auth

import (
	"errors"
	"strings"
)

var (
	ErrMissingToken  = errors.New("missing authorization header")
	ErrMalformed     = errors.New("invalid authorization header format")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrNotConfigured = errors.New("authentication not configured")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID    string
	Email     string
	Name      string
	SessionID string
}

// Authenticator tries the OIDC verifier first and then, when a secret is
// set, the service's own HMAC tokens.
type Authenticator struct {
	verifier  TokenVerifier
	jwtSecret string
}

func NewAuthenticator(verifier TokenVerifier, jwtSecret string) *Authenticator {
	return &Authenticator{verifier: verifier, jwtSecret: jwtSecret}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrMalformed
	}
	return strings.TrimSpace(parts[1]), nil
}

// Authenticate validates the Authorization header value.
func (a *Authenticator) Authenticate(header string) (*Identity, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, err
	}
	return a.Verify(token)
}

func (a *Authenticator) Verify(token string) (*Identity, error) {
	if a.verifier == nil && a.jwtSecret == "" {
		return nil, ErrNotConfigured
	}

	if a.verifier != nil {
		id, err := a.verifier.Validate(token)
		if err == nil {
			return id, nil
		}
		if a.jwtSecret == "" {
			return nil, ErrInvalidToken
		}
	}

	claims, err := ValidateLegacyToken(token, a.jwtSecret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Name:      claims.Name,
		SessionID: claims.SessionID,
	}, nil
}

// Secret returns the HMAC secret used for issued tokens.
func (a *Authenticator) Secret() string { return a.jwtSecret }
