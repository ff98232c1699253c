package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/competeiq/api/internal/config"
)

const testIssuer = "https://id.competeiq.test"

func signRS256(t *testing.T, key *rsa.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestOIDCVerifier_Validate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keys := func(*jwt.Token) (interface{}, error) { return &key.PublicKey, nil }
	v := newOIDCVerifier(keys, testIssuer, "competeiq-web")

	valid := func() oidcClaims {
		return oidcClaims{
			Email:             "ada@example.com",
			PreferredUsername: "ada",
			SessionID:         "sid-9",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-42",
				Issuer:    testIssuer,
				Audience:  jwt.ClaimStrings{"competeiq-web"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	id, err := v.Validate(signRS256(t, key, valid()))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id.UserID != "user-42" || id.Name != "ada" || id.Email != "ada@example.com" || id.SessionID != "sid-9" {
		t.Errorf("unexpected identity %+v", id)
	}

	tests := []struct {
		name   string
		mutate func(*oidcClaims)
	}{
		{"wrong issuer", func(c *oidcClaims) { c.Issuer = "https://elsewhere.test" }},
		{"wrong audience", func(c *oidcClaims) { c.Audience = jwt.ClaimStrings{"other-app"} }},
		{"expired", func(c *oidcClaims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour)) }},
		{"no expiry", func(c *oidcClaims) { c.ExpiresAt = nil }},
		{"no subject", func(c *oidcClaims) { c.Subject = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			if _, err := v.Validate(signRS256(t, key, c)); err == nil {
				t.Error("expected rejection")
			}
		})
	}

	t.Run("hmac token", func(t *testing.T) {
		token, err := IssueToken(secret, Identity{UserID: "u-1"}, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := v.Validate(token); err == nil {
			t.Error("expected an HMAC token to be rejected")
		}
	})
}

func TestDiscoverKeySet(t *testing.T) {
	var issuer string
	mux := http.NewServeMux()
	mux.HandleFunc("/good/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": issuer + "/good", "jwks_uri": issuer + "/good/keys"})
	})
	mux.HandleFunc("/mismatch/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": "https://evil.test", "jwks_uri": issuer + "/keys"})
	})
	mux.HandleFunc("/nokeys/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": issuer + "/nokeys"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	issuer = srv.URL

	ctx := context.Background()
	uri, err := discoverKeySet(ctx, srv.Client(), srv.URL+"/good")
	if err != nil || uri != srv.URL+"/good/keys" {
		t.Fatalf("discover: %q, %v", uri, err)
	}
	for _, path := range []string{"/mismatch", "/nokeys", "/missing"} {
		if _, err := discoverKeySet(ctx, srv.Client(), srv.URL+path); err == nil {
			t.Errorf("%s: expected discovery error", path)
		}
	}
}

func TestNewOIDCVerifier_RequiresIssuer(t *testing.T) {
	_, err := NewOIDCVerifier(context.Background(), &config.ZitadelConfig{})
	if err == nil || !strings.Contains(err.Error(), "issuer") {
		t.Errorf("expected issuer error, got %v", err)
	}
}
