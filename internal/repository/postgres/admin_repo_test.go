package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/keygate/internal/errs"
)

func TestAdminRepo_EnsureOwner(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAdminRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO admins \(user_id, is_owner, added_by, added_at\) VALUES \(\$1, true, \$1, \$2\) ON CONFLICT \(user_id\) DO UPDATE SET is_owner=true`).
		WithArgs(int64(1), t0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE admins SET is_owner=false WHERE is_owner AND user_id<>\$1`).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	require.NoError(t, r.EnsureOwner(context.Background(), 1, t0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminRepo_IsAdmin(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAdminRepo(db)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM admins WHERE user_id=\$1\)`).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := r.IsAdmin(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAdminRepo_AddAdmin(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAdminRepo(db)
	ctx := context.Background()
	const ins = `INSERT INTO admins \(user_id, is_owner, added_by, added_at\) VALUES \(\$1, false, \$2, \$3\) ON CONFLICT \(user_id\) DO NOTHING`

	mock.ExpectExec(ins).WithArgs(int64(2), int64(1), t0).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.AddAdmin(ctx, 2, 1, t0))

	mock.ExpectExec(ins).WithArgs(int64(2), int64(1), t0).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	require.ErrorIs(t, r.AddAdmin(ctx, 2, 1, t0), errs.ErrAlreadyAdmin)
}

func TestAdminRepo_RemoveAdmin(t *testing.T) {
	const sel = `SELECT is_owner FROM admins WHERE user_id=\$1 FOR UPDATE`
	ctx := context.Background()

	t.Run("member", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		mock.ExpectBegin()
		mock.ExpectQuery(sel).WithArgs(int64(2)).WillReturnRows(pgxmock.NewRows([]string{"is_owner"}).AddRow(false))
		mock.ExpectExec(`DELETE FROM admins WHERE user_id=\$1`).WithArgs(int64(2)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()
		require.NoError(t, NewAdminRepo(db).RemoveAdmin(ctx, 2))
	})

	t.Run("absent", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		mock.ExpectBegin()
		mock.ExpectQuery(sel).WithArgs(int64(3)).WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()
		require.ErrorIs(t, NewAdminRepo(db).RemoveAdmin(ctx, 3), errs.ErrNotAdmin)
	})

	t.Run("owner", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		mock.ExpectBegin()
		mock.ExpectQuery(sel).WithArgs(int64(1)).WillReturnRows(pgxmock.NewRows([]string{"is_owner"}).AddRow(true))
		mock.ExpectRollback()
		require.ErrorIs(t, NewAdminRepo(db).RemoveAdmin(ctx, 1), errs.ErrCannotRemoveOwner)
	})
}

func TestAdminRepo_ListAdmins(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAdminRepo(db)

	mock.ExpectQuery(`SELECT user_id, is_owner, added_by, added_at FROM admins ORDER BY is_owner DESC, added_at ASC`).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "is_owner", "added_by", "added_at"}).
			AddRow(int64(1), true, int64(1), t0).
			AddRow(int64(2), false, int64(1), t0.Add(time.Hour)))
	as, err := r.ListAdmins(context.Background())
	require.NoError(t, err)
	require.Len(t, as, 2)
	require.True(t, as[0].IsOwner)
	require.Equal(t, int64(2), as[1].UserID)
}
