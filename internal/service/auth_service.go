package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/competeiq/api/internal/auth"
	"github.com/competeiq/api/internal/client"
	"github.com/competeiq/api/internal/model"
)

// IdentityProvider is the account API the auth endpoints pass through to.
type IdentityProvider interface {
	IsConfigured() bool
	CreateAccount(ctx context.Context, email, password, name string) (*client.IdentityUser, error)
	CreateEmailSession(ctx context.Context, email, password string) (*client.IdentitySession, error)
	GetAccount(ctx context.Context, secret string) (*client.IdentityUser, error)
	DeleteCurrentSession(ctx context.Context, secret string) error
}

// storedSession links a token's sid to the provider session secret.
type storedSession struct {
	UserID string    `json:"user_id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Secret string    `json:"secret,omitempty"`
	Expire time.Time `json:"expire"`
}

// demoNamespace seeds the deterministic ids of demo users.
var demoNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("demo.competeiq.app"))

// AuthService logs users in through the identity provider and issues the
// service's own tokens. Without a provider it derives a demo identity from
// the email.
type AuthService struct {
	redis     *redis.Client
	idp       IdentityProvider
	jwtSecret string
	tokenTTL  time.Duration
}

func NewAuthService(redisClient *redis.Client, idp IdentityProvider, jwtSecret string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{redis: redisClient, idp: idp, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

func (s *AuthService) providerConfigured() bool {
	return s.idp != nil && s.idp.IsConfigured()
}

// Login exchanges email and password for a token.
func (s *AuthService) Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResponse, error) {
	if !s.providerConfigured() {
		return s.demoLogin(ctx, req.Email, "")
	}

	sess, err := s.idp.CreateEmailSession(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, client.ErrInvalidCredentials) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("identity login failed: %w", err)
	}
	user, err := s.idp.GetAccount(ctx, sess.Secret)
	if err != nil {
		return nil, fmt.Errorf("identity account lookup failed: %w", err)
	}
	return s.issue(ctx, user, sess.Secret, sess.Expire)
}

// Register creates the account and logs it in.
func (s *AuthService) Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResponse, error) {
	if !s.providerConfigured() {
		return s.demoLogin(ctx, req.Email, req.Name)
	}

	if _, err := s.idp.CreateAccount(ctx, req.Email, req.Password, req.Name); err != nil {
		return nil, fmt.Errorf("identity registration failed: %w", err)
	}
	return s.Login(ctx, &model.LoginRequest{Email: req.Email, Password: req.Password})
}

// Logout ends the provider session behind the token, if any.
func (s *AuthService) Logout(ctx context.Context, id *auth.Identity) error {
	if id.SessionID == "" {
		return nil
	}
	stored, err := s.loadSession(ctx, id.SessionID)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil
		}
		return err
	}
	if stored.Secret != "" && s.providerConfigured() {
		if err := s.idp.DeleteCurrentSession(ctx, stored.Secret); err != nil && !errors.Is(err, client.ErrSessionExpired) {
			return fmt.Errorf("identity logout failed: %w", err)
		}
	}
	return s.redis.Del(ctx, identitySessionKey(id.SessionID)).Err()
}

// CurrentUser returns the user behind a token. Tokens tied to a session
// stop working once that session is logged out.
func (s *AuthService) CurrentUser(ctx context.Context, id *auth.Identity) (*model.User, error) {
	if id.SessionID == "" {
		return &model.User{ID: id.UserID, Email: id.Email, Name: id.Name}, nil
	}
	stored, err := s.loadSession(ctx, id.SessionID)
	if err != nil {
		return nil, err
	}
	if stored.Secret != "" && s.providerConfigured() {
		user, err := s.idp.GetAccount(ctx, stored.Secret)
		if err != nil {
			if errors.Is(err, client.ErrSessionExpired) {
				return nil, ErrUnauthorized
			}
			return nil, err
		}
		return &model.User{ID: user.ID, Email: user.Email, Name: user.Name}, nil
	}
	return &model.User{ID: stored.UserID, Email: stored.Email, Name: stored.Name}, nil
}

func (s *AuthService) demoLogin(ctx context.Context, email, name string) (*model.AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	user := &client.IdentityUser{
		ID:    uuid.NewSHA1(demoNamespace, []byte(email)).String(),
		Email: email,
		Name:  name,
	}
	return s.issue(ctx, user, "", time.Now().Add(s.tokenTTL))
}

func (s *AuthService) issue(ctx context.Context, user *client.IdentityUser, secret string, expire time.Time) (*model.AuthResponse, error) {
	sid := uuid.New().String()
	ttl := time.Until(expire)
	if ttl <= 0 || ttl > s.tokenTTL {
		ttl = s.tokenTTL
		expire = time.Now().Add(ttl)
	}

	data, err := json.Marshal(storedSession{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Secret: secret,
		Expire: expire,
	})
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, identitySessionKey(sid), data, ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	token, err := auth.IssueToken(s.jwtSecret, auth.Identity{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		SessionID: sid,
	}, ttl)
	if err != nil {
		return nil, err
	}

	return &model.AuthResponse{
		User:    model.User{ID: user.ID, Email: user.Email, Name: user.Name},
		Session: model.AuthSession{ID: sid, Expire: expire},
		Token:   token,
	}, nil
}

func (s *AuthService) loadSession(ctx context.Context, sid string) (*storedSession, error) {
	data, err := s.redis.Get(ctx, identitySessionKey(sid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func identitySessionKey(sid string) string { return fmt.Sprintf("identity_session:%s", sid) }
