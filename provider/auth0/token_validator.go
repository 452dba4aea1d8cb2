package auth0

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/golang-jwt/jwt/v5"
	"github.com/keysai/go-auth"
)

// Claims is what the backend needs out of a validated access token.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	ExpiresAt     *time.Time
}

// Verifier validates access tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// TokenValidator validates Auth0-issued JWTs using JWKS.
type TokenValidator struct {
	config    Config
	validator *validator.Validator
	// Namespaces are tried when a profile claim is not present at the top
	// level.
	Namespaces []string
}

var _ Verifier = (*TokenValidator)(nil)

// NewTokenValidator creates a new Auth0 token validator.
func NewTokenValidator(cfg Config) (*TokenValidator, error) {
	cfg = cfg.withDefaults()

	issuer := cfg.issuerURL()
	if issuer == "" {
		return nil, fmt.Errorf("auth0: issuer or domain is required")
	}

	issuerURL, err := url.Parse(issuer)
	if err != nil {
		return nil, fmt.Errorf("auth0: invalid issuer URL: %w", err)
	}
	if issuerURL.Scheme == "" || issuerURL.Host == "" {
		return nil, fmt.Errorf("auth0: invalid issuer URL: %s", issuer)
	}

	provider := jwks.NewCachingProvider(issuerURL, cfg.CacheTTL)

	customClaims := cfg.CustomClaims
	if customClaims == nil {
		customClaims = func() validator.CustomClaims {
			return &Auth0CustomClaims{}
		}
	}

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		cfg.Audience,
		validator.WithCustomClaims(customClaims),
	)
	if err != nil {
		return nil, fmt.Errorf("auth0: failed to create validator: %w", err)
	}

	return &TokenValidator{
		config:    cfg,
		validator: jwtValidator,
	}, nil
}

// Verify checks signature, issuer, audience and expiry.
func (v *TokenValidator) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if v.config.ContextFunc != nil {
		ctx = v.config.ContextFunc()
	}

	token, err := v.validator.ValidateToken(ctx, tokenString)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	validated, ok := token.(*validator.ValidatedClaims)
	if !ok || validated == nil {
		return nil, auth.ErrTokenMalformed
	}

	return v.claimsFrom(validated), nil
}

func (v *TokenValidator) claimsFrom(validated *validator.ValidatedClaims) *Claims {
	out := &Claims{Subject: validated.RegisteredClaims.Subject}

	if exp := validated.RegisteredClaims.Expiry; exp > 0 {
		t := time.Unix(exp, 0)
		out.ExpiresAt = &t
	}

	if custom, ok := validated.CustomClaims.(*Auth0CustomClaims); ok && custom != nil {
		out.Email = custom.Email
		if out.Email == "" {
			out.Email = custom.Lookup("email", v.Namespaces...)
		}
		out.EmailVerified = custom.EmailVerified
		if !out.EmailVerified {
			for _, ns := range v.Namespaces {
				if b, ok := custom.Raw[ns+"email_verified"].(bool); ok {
					out.EmailVerified = b
					break
				}
			}
		}
	}

	return out
}

func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	clone := auth.ErrTokenMalformed.Clone()
	if stderrors.Is(err, jwt.ErrTokenExpired) || strings.Contains(err.Error(), "token is expired") {
		clone = auth.ErrTokenExpired.Clone()
	}

	if clone == nil {
		return err
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"provider": "auth0",
		"cause":    err.Error(),
	})
}
