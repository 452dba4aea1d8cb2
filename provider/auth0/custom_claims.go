package auth0

import (
	"context"
	"encoding/json"
)

// Auth0CustomClaims holds the profile claims read from Auth0 tokens.
type Auth0CustomClaims struct {
	Scope         string         `json:"scope"`
	Email         string         `json:"email"`
	EmailVerified bool           `json:"email_verified"`
	Name          string         `json:"name"`
	Raw           map[string]any `json:"-"`
}

// Validate satisfies validator.CustomClaims.
func (c *Auth0CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// UnmarshalJSON keeps the raw claims next to the decoded ones so namespaced
// claims can be read with Lookup.
func (c *Auth0CustomClaims) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type alias Auth0CustomClaims
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	*c = Auth0CustomClaims(decoded)
	c.Raw = raw
	return nil
}

// Lookup returns a string claim, trying the bare name first and then each
// namespace prefix. Auth0 rules usually add claims as
// "https://example.com/email".
func (c *Auth0CustomClaims) Lookup(name string, namespaces ...string) string {
	if c == nil || c.Raw == nil {
		return ""
	}
	if v, ok := c.Raw[name].(string); ok && v != "" {
		return v
	}
	for _, ns := range namespaces {
		if v, ok := c.Raw[ns+name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
