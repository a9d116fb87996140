package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/keygate/internal/errs"
	"github.com/and161185/keygate/internal/model"
)

const upsertGrantSQL = `
INSERT INTO access_grants (user_id, expires_at, role, granted_at, source)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO UPDATE
SET expires_at=EXCLUDED.expires_at, role=EXCLUDED.role, granted_at=EXCLUDED.granted_at, source=EXCLUDED.source`

// GrantRepo implements GrantRepository using PostgreSQL.
type GrantRepo struct{ db *DB }

// NewGrantRepo constructs a grant repository.
func NewGrantRepo(db *DB) *GrantRepo { return &GrantRepo{db: db} }

// UpsertGrant creates or replaces the user's grant.
func (r *GrantRepo) UpsertGrant(ctx context.Context, g model.AccessGrant) error {
	_, err := r.db.Pool.Exec(ctx, upsertGrantSQL, g.UserID, g.ExpiresAt, string(g.Role), g.GrantedAt, g.Source)
	return err
}

// GetGrant selects the raw grant row.
func (r *GrantRepo) GetGrant(ctx context.Context, userID int64) (*model.AccessGrant, error) {
	const q = `
SELECT user_id, expires_at, role, granted_at, source
FROM access_grants WHERE user_id=$1`
	var (
		g    model.AccessGrant
		role string
	)
	err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&g.UserID, &g.ExpiresAt, &role, &g.GrantedAt, &g.Source)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	g.Role = model.Role(role)
	return &g, nil
}

// DeleteGrant removes the user's grant.
func (r *GrantRepo) DeleteGrant(ctx context.Context, userID int64) error {
	const q = `DELETE FROM access_grants WHERE user_id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteExpiredGrants removes grants whose expiry is at or before now.
func (r *GrantRepo) DeleteExpiredGrants(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM access_grants WHERE expires_at <= $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
