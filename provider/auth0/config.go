package auth0

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
)

// DefaultConnection is the Auth0 database connection used for sign up and
// password grants.
const DefaultConnection = "Username-Password-Authentication"

// DefaultScope requests an ID token, profile claims and a refresh token.
const DefaultScope = "openid profile email offline_access"

// Config holds Auth0 configuration.
type Config struct {
	// Domain is the Auth0 tenant domain (e.g., "example.us.auth0.com").
	Domain string

	ClientID     string
	ClientSecret string

	// Connection is the database connection name.
	// Default: DefaultConnection.
	Connection string

	// Scope requested by the password grant.
	// Default: DefaultScope.
	Scope string

	// Audience is the API identifier(s) to validate against. The first entry
	// is requested by the password grant.
	Audience []string

	// Issuer overrides the default issuer URL (optional).
	// Default: "https://{Domain}/".
	Issuer string

	// CacheTTL is how long to cache JWKS keys.
	// Default: 5 minutes.
	CacheTTL time.Duration

	// CustomClaims defines custom claim types to extract.
	CustomClaims func() validator.CustomClaims

	// ContextFunc provides a context for JWKS fetch/validation.
	// Default: context.Background.
	ContextFunc func() context.Context
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(domain string, audience []string) Config {
	return Config{
		Domain:     domain,
		Audience:   audience,
		Connection: DefaultConnection,
		Scope:      DefaultScope,
		CacheTTL:   5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	if c.Connection == "" {
		c.Connection = DefaultConnection
	}
	if c.Scope == "" {
		c.Scope = DefaultScope
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Minute
	}
	return c
}

func (c Config) audience() string {
	if len(c.Audience) == 0 {
		return ""
	}
	return c.Audience[0]
}

func (c Config) issuerURL() string {
	if c.Issuer != "" {
		return normalizeIssuer(c.Issuer)
	}

	domain := strings.TrimSpace(c.Domain)
	if domain == "" {
		return ""
	}

	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return normalizeIssuer(domain)
	}

	return fmt.Sprintf("https://%s/", strings.TrimSuffix(domain, "/"))
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return issuer
	}
	if strings.HasSuffix(issuer, "/") {
		return issuer
	}
	return issuer + "/"
}
