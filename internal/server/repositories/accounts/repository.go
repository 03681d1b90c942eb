// Package accounts is the persistence layer for user accounts. It provides
// a Repository contract with MongoDB, PostgreSQL and in-memory backends.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
)

// Repository stores accounts. Lookups return common.ErrNotFound when nothing
// matches; Create returns common.ErrDuplicateAccount for a taken email.
type Repository interface {
	FindByEmail(ctx context.Context, email string, opts ...FindOption) (*models.Account, error)
	FindByID(ctx context.Context, id string, opts ...FindOption) (*models.Account, error)
	// FindByResetOTP returns the account holding code on its reset track
	// with an expiry strictly after now.
	FindByResetOTP(ctx context.Context, code int, now time.Time) (*models.Account, error)
	// Create assigns ID and CreatedAt.
	Create(ctx context.Context, account *models.Account) error
	// Save writes every mutable field. The password hash is written only
	// when account.PasswordHash is non-empty.
	Save(ctx context.Context, account *models.Account) error
}

// FindOption tunes a single lookup.
type FindOption func(*findOptions)

type findOptions struct {
	withPasswordHash bool
}

// WithPasswordHash includes the stored password hash in the result.
func WithPasswordHash() FindOption {
	return func(o *findOptions) { o.withPasswordHash = true }
}

func applyFindOptions(opts []FindOption) findOptions {
	var o findOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
