package auth

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds auth options
type Config interface {
	// GetVerificationRedirectURL is where the sign-up confirmation link lands.
	GetVerificationRedirectURL() string
	// GetPasswordResetRedirectURL is where the password reset link lands.
	GetPasswordResetRedirectURL() string
	GetLoginRoute() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
	GetLoadingMessage() string
}

// Options is the default Config implementation.
type Options struct {
	BaseURL                 string `yaml:"base_url" json:"base_url"`
	VerificationRedirectURL string `yaml:"verification_redirect_url" json:"verification_redirect_url"`
	PasswordResetRedirect   string `yaml:"password_reset_redirect_url" json:"password_reset_redirect_url"`
	LoginRoute              string `yaml:"login_route" json:"login_route"`
	RejectedRouteKey        string `yaml:"rejected_route_key" json:"rejected_route_key"`
	RejectedRouteDefault    string `yaml:"rejected_route_default" json:"rejected_route_default"`
	LoadingMessage          string `yaml:"loading_message" json:"loading_message"`
}

var _ Config = Options{}

// DefaultOptions derives every redirect from the application base URL.
func DefaultOptions(baseURL string) Options {
	base := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	return Options{
		BaseURL:                 base,
		VerificationRedirectURL: base + "/verify",
		PasswordResetRedirect:   base + "/reset-password",
		LoginRoute:              "/login",
		RejectedRouteKey:        "rejected_route",
		RejectedRouteDefault:    "/dashboard",
		LoadingMessage:          "Loading...",
	}
}

// LoadOptions reads YAML options from path. Missing values are filled from
// DefaultOptions using the file's base_url.
func LoadOptions(path string) (Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("auth: read options: %w", err)
	}

	return ParseOptions(raw)
}

// ParseOptions decodes YAML options and applies defaults.
func ParseOptions(raw []byte) (Options, error) {
	var opts Options
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return Options{}, fmt.Errorf("auth: decode options: %w", err)
	}
	return opts.withDefaults(), nil
}

func (o Options) withDefaults() Options {
	def := DefaultOptions(o.BaseURL)
	if o.VerificationRedirectURL == "" {
		o.VerificationRedirectURL = def.VerificationRedirectURL
	}
	if o.PasswordResetRedirect == "" {
		o.PasswordResetRedirect = def.PasswordResetRedirect
	}
	if o.LoginRoute == "" {
		o.LoginRoute = def.LoginRoute
	}
	if o.RejectedRouteKey == "" {
		o.RejectedRouteKey = def.RejectedRouteKey
	}
	if o.RejectedRouteDefault == "" {
		o.RejectedRouteDefault = def.RejectedRouteDefault
	}
	if o.LoadingMessage == "" {
		o.LoadingMessage = def.LoadingMessage
	}
	o.BaseURL = def.BaseURL
	return o
}

func (o Options) GetVerificationRedirectURL() string { return o.VerificationRedirectURL }
func (o Options) GetPasswordResetRedirectURL() string { return o.PasswordResetRedirect }
func (o Options) GetLoginRoute() string               { return o.LoginRoute }
func (o Options) GetRejectedRouteKey() string         { return o.RejectedRouteKey }
func (o Options) GetRejectedRouteDefault() string     { return o.RejectedRouteDefault }
func (o Options) GetLoadingMessage() string           { return o.LoadingMessage }
