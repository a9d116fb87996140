package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/keygate/internal/errs"
	"github.com/and161185/keygate/internal/model"
	"github.com/and161185/keygate/internal/repository"
)

const keyColumns = `id, code, duration_ns, used, created_at, expires_at, created_by, redeemed_by, redeemed_at`

// KeyRepo implements KeyRepository using PostgreSQL.
type KeyRepo struct{ db *DB }

// NewKeyRepo constructs a key repository.
func NewKeyRepo(db *DB) *KeyRepo { return &KeyRepo{db: db} }

// CreateKey inserts an unused key.
func (r *KeyRepo) CreateKey(ctx context.Context, k *model.IssuedKey) error {
	const q = `
INSERT INTO issued_keys (id, code, duration_ns, used, created_at, expires_at, created_by)
VALUES ($1, $2, $3, false, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, k.ID, k.Code, int64(k.Duration), k.CreatedAt, k.ExpiresAt, k.CreatedBy)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetKey selects a key by code.
func (r *KeyRepo) GetKey(ctx context.Context, code string) (*model.IssuedKey, error) {
	q := `SELECT ` + keyColumns + ` FROM issued_keys WHERE code=$1`
	k, err := scanKey(r.db.Pool.QueryRow(ctx, q, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return k, nil
}

// ListKeys returns the newest keys first.
func (r *KeyRepo) ListKeys(ctx context.Context, limit int) ([]model.IssuedKey, error) {
	q := `SELECT ` + keyColumns + ` FROM issued_keys ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.IssuedKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

// Redeem locks the key row, validates it, marks it used and upserts the grant in one transaction.
func (r *KeyRepo) Redeem(ctx context.Context, rd repository.Redemption) (grant model.AccessGrant, err error) {
	const sel = `SELECT id, duration_ns, used, expires_at FROM issued_keys WHERE code=$1 FOR UPDATE`
	const upd = `UPDATE issued_keys SET used=true, redeemed_by=$2, redeemed_at=$3 WHERE id=$1`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		var (
			id        uuid.UUID
			durNS     int64
			used      bool
			expiresAt time.Time
		)
		if err := tx.QueryRow(ctx, sel, rd.Code).Scan(&id, &durNS, &used, &expiresAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if used {
			return errs.ErrAlreadyUsed
		}
		if rd.Now.After(expiresAt) {
			return errs.ErrExpired
		}
		if _, err := tx.Exec(ctx, upd, id, rd.UserID, rd.Now); err != nil {
			return err
		}
		grant = model.AccessGrant{
			UserID:    rd.UserID,
			ExpiresAt: rd.Now.Add(time.Duration(durNS)),
			Role:      rd.Role,
			GrantedAt: rd.Now,
			Source:    "redeem:" + id.String(),
		}
		_, err := tx.Exec(ctx, upsertGrantSQL, grant.UserID, grant.ExpiresAt, string(grant.Role), grant.GrantedAt, grant.Source)
		return err
	})
	if err != nil {
		return model.AccessGrant{}, err
	}
	return grant, nil
}

func scanKey(row pgx.Row) (*model.IssuedKey, error) {
	var (
		k          model.IssuedKey
		durNS      int64
		redeemedBy sql.NullInt64
		redeemedAt sql.NullTime
	)
	if err := row.Scan(&k.ID, &k.Code, &durNS, &k.Used, &k.CreatedAt, &k.ExpiresAt, &k.CreatedBy, &redeemedBy, &redeemedAt); err != nil {
		return nil, err
	}
	k.Duration = time.Duration(durNS)
	if redeemedBy.Valid {
		v := redeemedBy.Int64
		k.RedeemedBy = &v
	}
	if redeemedAt.Valid {
		v := redeemedAt.Time
		k.RedeemedAt = &v
	}
	return &k, nil
}
