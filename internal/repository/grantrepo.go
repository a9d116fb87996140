// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/keygate/internal/model"
)

// GrantRepository stores at most one access grant per user.
type GrantRepository interface {
	// UpsertGrant creates or replaces the grant for g.UserID.
	UpsertGrant(ctx context.Context, g model.AccessGrant) error
	// GetGrant returns the raw grant regardless of expiry, or errs.ErrNotFound.
	GetGrant(ctx context.Context, userID int64) (*model.AccessGrant, error)
	// DeleteGrant removes the grant, or returns errs.ErrNotFound.
	DeleteGrant(ctx context.Context, userID int64) error
	// DeleteExpiredGrants removes every grant with expires_at <= now.
	DeleteExpiredGrants(ctx context.Context, now time.Time) (int64, error)
}
