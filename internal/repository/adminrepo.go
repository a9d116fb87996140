package repository

import (
	"context"
	"time"

	"github.com/and161185/keygate/internal/model"
)

// AdminRepository stores the privileged identity set.
type AdminRepository interface {
	// EnsureOwner inserts the owner row or marks an existing row as owner.
	EnsureOwner(ctx context.Context, ownerID int64, now time.Time) error
	// IsAdmin reports membership.
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	// AddAdmin inserts target; an existing member returns errs.ErrAlreadyAdmin.
	AddAdmin(ctx context.Context, target, addedBy int64, now time.Time) error
	// RemoveAdmin deletes a non-owner member; absent target returns errs.ErrNotAdmin,
	// an owner row returns errs.ErrCannotRemoveOwner.
	RemoveAdmin(ctx context.Context, target int64) error
	// ListAdmins returns all members, owner first.
	ListAdmins(ctx context.Context) ([]model.Admin, error)
}
