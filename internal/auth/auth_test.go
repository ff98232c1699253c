package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret"

type stubVerifier struct {
	id *Identity
}

func (s stubVerifier) Validate(string) (*Identity, error) {
	if s.id == nil {
		return nil, errors.New("not an oidc token")
	}
	return s.id, nil
}

func (stubVerifier) Close() error { return nil }

func TestIssueAndValidate(t *testing.T) {
	token, err := IssueToken(secret, Identity{UserID: "u-1", Email: "a@b.c", Name: "Ada", SessionID: "sid-1"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := ValidateLegacyToken(token, secret)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "u-1" || claims.Name != "Ada" || claims.SessionID != "sid-1" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if claims.Issuer != Issuer {
		t.Errorf("unexpected issuer %q", claims.Issuer)
	}

	if _, err := ValidateLegacyToken(token, "other"); err == nil {
		t.Error("expected signature failure with another secret")
	}
}

func TestValidateLegacyToken_Expired(t *testing.T) {
	claims := LegacyClaims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if _, err := ValidateLegacyToken(token, secret); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		err    error
	}{
		{"", "", ErrMissingToken},
		{"Token abc", "", ErrMalformed},
		{"Bearer ", "", ErrMalformed},
		{"bearer abc", "abc", nil},
		{"Bearer  abc ", "abc", nil},
	}
	for _, c := range cases {
		got, err := BearerToken(c.header)
		if !errors.Is(err, c.err) || got != c.want {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", c.header, got, err, c.want, c.err)
		}
	}
}

func TestAuthenticator(t *testing.T) {
	legacy, _ := IssueToken(secret, Identity{UserID: "legacy-user"}, time.Hour)

	t.Run("verifier first", func(t *testing.T) {
		a := NewAuthenticator(stubVerifier{id: &Identity{UserID: "oidc-user"}}, secret)
		id, err := a.Authenticate("Bearer anything")
		if err != nil || id.UserID != "oidc-user" {
			t.Fatalf("unexpected %+v %v", id, err)
		}
	})

	t.Run("fallback to legacy", func(t *testing.T) {
		a := NewAuthenticator(stubVerifier{}, secret)
		id, err := a.Authenticate("Bearer " + legacy)
		if err != nil || id.UserID != "legacy-user" {
			t.Fatalf("unexpected %+v %v", id, err)
		}
	})

	t.Run("verifier only", func(t *testing.T) {
		a := NewAuthenticator(stubVerifier{}, "")
		if _, err := a.Authenticate("Bearer " + legacy); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected invalid token, got %v", err)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		a := NewAuthenticator(nil, "")
		if _, err := a.Verify(legacy); !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("expected not configured, got %v", err)
		}
	})
}
