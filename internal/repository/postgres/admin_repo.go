package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/keygate/internal/errs"
	"github.com/and161185/keygate/internal/model"
)

// AdminRepo implements AdminRepository using PostgreSQL.
type AdminRepo struct{ db *DB }

// NewAdminRepo constructs an admin repository.
func NewAdminRepo(db *DB) *AdminRepo { return &AdminRepo{db: db} }

// EnsureOwner makes ownerID the only owner row.
func (r *AdminRepo) EnsureOwner(ctx context.Context, ownerID int64, now time.Time) error {
	const ins = `
INSERT INTO admins (user_id, is_owner, added_by, added_at)
VALUES ($1, true, $1, $2)
ON CONFLICT (user_id) DO UPDATE SET is_owner=true`
	const demote = `UPDATE admins SET is_owner=false WHERE is_owner AND user_id<>$1`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ins, ownerID, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, demote, ownerID)
		return err
	})
}

// IsAdmin reports whether userID is in the admin set.
func (r *AdminRepo) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM admins WHERE user_id=$1)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// AddAdmin inserts target unless already present.
func (r *AdminRepo) AddAdmin(ctx context.Context, target, addedBy int64, now time.Time) error {
	const q = `
INSERT INTO admins (user_id, is_owner, added_by, added_at)
VALUES ($1, false, $2, $3)
ON CONFLICT (user_id) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q, target, addedBy, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrAlreadyAdmin
	}
	return nil
}

// RemoveAdmin deletes target unless it is absent or the owner.
func (r *AdminRepo) RemoveAdmin(ctx context.Context, target int64) error {
	const sel = `SELECT is_owner FROM admins WHERE user_id=$1 FOR UPDATE`
	const del = `DELETE FROM admins WHERE user_id=$1`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		var owner bool
		if err := tx.QueryRow(ctx, sel, target).Scan(&owner); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotAdmin
			}
			return err
		}
		if owner {
			return errs.ErrCannotRemoveOwner
		}
		_, err := tx.Exec(ctx, del, target)
		return err
	})
}

// ListAdmins returns the owner first, then members by join time.
func (r *AdminRepo) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	const q = `
SELECT user_id, is_owner, added_by, added_at
FROM admins ORDER BY is_owner DESC, added_at ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Admin
	for rows.Next() {
		var a model.Admin
		if err := rows.Scan(&a.UserID, &a.IsOwner, &a.AddedBy, &a.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
