package local

import (
	"context"

	"github.com/keysai/go-auth"
	"github.com/uptrace/bun"
)

// NewDirectory returns a privileged confirmation lookup over the users
// table. It is meant for server side code only.
func NewDirectory(db *bun.DB) auth.AdminDirectory {
	repo := NewRepositoryManager(db)
	return auth.AdminDirectoryFunc(func(ctx context.Context, email string) (bool, error) {
		return lookupConfirmation(ctx, repo, normalizeEmail(email))
	})
}
