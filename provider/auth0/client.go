package auth0

import (
	"context"
	"fmt"
	"strings"

	"github.com/auth0/go-auth0/authentication"
	"github.com/auth0/go-auth0/authentication/database"
	"github.com/auth0/go-auth0/authentication/oauth"
)

// IdentityAPI is the part of the Auth0 Authentication API the backend calls.
type IdentityAPI interface {
	Signup(ctx context.Context, req database.SignupRequest) (*database.SignupResponse, error)
	ChangePassword(ctx context.Context, req database.ChangePasswordRequest) (string, error)
	LoginWithPassword(ctx context.Context, req oauth.LoginWithPasswordRequest) (*oauth.TokenSet, error)
	RefreshToken(ctx context.Context, req oauth.RefreshTokenRequest) (*oauth.TokenSet, error)
	RevokeRefreshToken(ctx context.Context, req oauth.RevokeRefreshTokenRequest) error
}

type sdkIdentity struct {
	client *authentication.Authentication
}

// NewIdentityAPI creates an Authentication API client for cfg.
func NewIdentityAPI(ctx context.Context, cfg Config) (IdentityAPI, error) {
	domain := strings.TrimSpace(cfg.Domain)
	if domain == "" {
		return nil, fmt.Errorf("auth0: domain is required")
	}

	opts := []authentication.Option{authentication.WithClientID(cfg.ClientID)}
	if cfg.ClientSecret != "" {
		opts = append(opts, authentication.WithClientSecret(cfg.ClientSecret))
	}

	client, err := authentication.New(ctx, domain, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth0: failed to create authentication client: %w", err)
	}

	return &sdkIdentity{client: client}, nil
}

func (s *sdkIdentity) Signup(ctx context.Context, req database.SignupRequest) (*database.SignupResponse, error) {
	return s.client.Database.Signup(ctx, req)
}

func (s *sdkIdentity) ChangePassword(ctx context.Context, req database.ChangePasswordRequest) (string, error) {
	return s.client.Database.ChangePassword(ctx, req)
}

func (s *sdkIdentity) LoginWithPassword(ctx context.Context, req oauth.LoginWithPasswordRequest) (*oauth.TokenSet, error) {
	return s.client.OAuth.LoginWithPassword(ctx, req, oauth.IDTokenValidationOptions{})
}

func (s *sdkIdentity) RefreshToken(ctx context.Context, req oauth.RefreshTokenRequest) (*oauth.TokenSet, error) {
	return s.client.OAuth.RefreshToken(ctx, req, oauth.IDTokenValidationOptions{})
}

func (s *sdkIdentity) RevokeRefreshToken(ctx context.Context, req oauth.RevokeRefreshTokenRequest) error {
	return s.client.OAuth.RevokeRefreshToken(ctx, req)
}
