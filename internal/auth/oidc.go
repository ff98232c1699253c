package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/competeiq/api/internal/config"
)

const discoveryTimeout = 15 * time.Second

// TokenVerifier maps a token from an external provider to an Identity.
type TokenVerifier interface {
	Validate(token string) (*Identity, error)
	Close() error
}

// oidcClaims is the subset of provider claims an Identity is built from.
type oidcClaims struct {
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	SessionID         string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// OIDCVerifier accepts asymmetrically signed tokens of one issuer. When an
// audience is configured the token must name it.
type OIDCVerifier struct {
	keys   jwt.Keyfunc
	parser *jwt.Parser
	stop   context.CancelFunc
}

// NewOIDCVerifier reads the issuer's discovery document and loads its key
// set. The key set is refreshed in the background until Close.
func NewOIDCVerifier(ctx context.Context, cfg *config.ZitadelConfig) (*OIDCVerifier, error) {
	issuer := strings.TrimRight(cfg.Issuer, "/")
	if issuer == "" {
		return nil, errors.New("oidc issuer is required")
	}

	discoverCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()
	jwksURI, err := discoverKeySet(discoverCtx, http.DefaultClient, issuer)
	if err != nil {
		return nil, err
	}

	refreshCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	set, err := keyfunc.NewDefaultCtx(refreshCtx, []string{jwksURI})
	if err != nil {
		stop()
		return nil, fmt.Errorf("failed to load key set %s: %w", jwksURI, err)
	}

	v := newOIDCVerifier(set.Keyfunc, issuer, cfg.ClientID)
	v.stop = stop
	return v, nil
}

func newOIDCVerifier(keys jwt.Keyfunc, issuer, audience string) *OIDCVerifier {
	opts := []jwt.ParserOption{
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "PS256"}),
		jwt.WithLeeway(30 * time.Second),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &OIDCVerifier{keys: keys, parser: jwt.NewParser(opts...)}
}

// discoverKeySet returns the jwks_uri advertised by issuer. The document
// must name the same issuer.
func discoverKeySet(ctx context.Context, client *http.Client, issuer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oidc discovery failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oidc discovery returned status %d", resp.StatusCode)
	}

	var doc struct {
		Issuer  string `json:"issuer"`
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	if strings.TrimRight(doc.Issuer, "/") != issuer {
		return "", fmt.Errorf("oidc discovery names issuer %q, want %q", doc.Issuer, issuer)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("oidc discovery has no jwks_uri")
	}
	return doc.JWKSURI, nil
}

// Validate checks signature, issuer, expiry and audience.
func (v *OIDCVerifier) Validate(token string) (*Identity, error) {
	var claims oidcClaims
	if _, err := v.parser.ParseWithClaims(token, &claims, v.keys); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}
	return &Identity{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Name:      name,
		SessionID: claims.SessionID,
	}, nil
}

// Close stops the key set refresh.
func (v *OIDCVerifier) Close() error {
	if v.stop != nil {
		v.stop()
	}
	return nil
}
