package repository

import (
	"context"
	"time"

	"github.com/and161185/keygate/internal/model"
)

// Redemption describes a redeem attempt applied atomically by KeyRepository.Redeem.
type Redemption struct {
	Code   string
	UserID int64
	Role   model.Role // stamped on the resulting grant
	Now    time.Time
}

// KeyRepository stores issued keys and performs atomic redemption.
type KeyRepository interface {
	// CreateKey inserts a new key; a code collision returns errs.ErrAlreadyExists.
	CreateKey(ctx context.Context, k *model.IssuedKey) error
	// GetKey loads a key by code, or returns errs.ErrNotFound.
	GetKey(ctx context.Context, code string) (*model.IssuedKey, error)
	// ListKeys returns up to limit keys, newest first.
	ListKeys(ctx context.Context, limit int) ([]model.IssuedKey, error)
	// Redeem marks the key used and upserts the holder's grant as one atomic unit.
	// Fails with errs.ErrNotFound, errs.ErrAlreadyUsed or errs.ErrExpired.
	Redeem(ctx context.Context, r Redemption) (model.AccessGrant, error)
}
