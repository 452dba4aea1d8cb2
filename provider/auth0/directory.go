package auth0

import (
	"context"
	"fmt"
	"strings"

	"github.com/auth0/go-auth0/management"
	"github.com/keysai/go-auth"
)

// UserLister is the Management API call Directory needs.
type UserLister interface {
	ListByEmail(ctx context.Context, email string) ([]*management.User, error)
}

// ManagementConfig configures the Auth0 management client.
type ManagementConfig struct {
	Domain       string
	ClientID     string
	ClientSecret string
	Client       *management.Management
}

// Directory looks up email confirmation through the Management API. It
// needs a machine to machine client with read:users.
type Directory struct {
	users UserLister
}

var _ auth.AdminDirectory = (*Directory)(nil)

// NewDirectory creates a Directory from cfg.
func NewDirectory(ctx context.Context, cfg ManagementConfig) (*Directory, error) {
	if cfg.Client != nil {
		return &Directory{users: managementUsers{cfg.Client}}, nil
	}

	domain := strings.TrimSpace(cfg.Domain)
	if domain == "" {
		return nil, fmt.Errorf("auth0 management: domain is required")
	}

	client, err := management.New(
		domain,
		management.WithClientCredentials(ctx, cfg.ClientID, cfg.ClientSecret),
	)
	if err != nil {
		return nil, fmt.Errorf("auth0 management: failed to create client: %w", err)
	}

	return &Directory{users: managementUsers{client}}, nil
}

// NewDirectoryWithLister is NewDirectory over an existing lister.
func NewDirectoryWithLister(users UserLister) *Directory {
	return &Directory{users: users}
}

// LookupEmailConfirmation reports whether any account with email is
// verified.
func (d *Directory) LookupEmailConfirmation(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)

	users, err := d.users.ListByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if len(users) == 0 {
		return false, auth.WrapError(auth.ErrIdentityNotFound, nil, map[string]any{"email": email, "provider": "auth0"})
	}

	for _, u := range users {
		if u.GetEmailVerified() {
			return true, nil
		}
	}
	return false, nil
}

type managementUsers struct {
	client *management.Management
}

func (m managementUsers) ListByEmail(ctx context.Context, email string) ([]*management.User, error) {
	return m.client.User.ListByEmail(ctx, email)
}
