package postgres

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/model"
	"github.com/and161185/cems/internal/repository"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestStore_WithTx_Commit(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO event_permissions`).
		WithArgs(int64(1), int64(2), "owner").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO event_permissions`).
		WithArgs(int64(1), int64(3), "viewer").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Grants().Upsert(ctx, model.Grant{EventID: 1, UserID: 2, Role: model.RoleOwner}); err != nil {
			return err
		}
		return r.Grants().Upsert(ctx, model.Grant{EventID: 1, UserID: 3, Role: model.RoleViewer})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTx_RollbackOnError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO event_permissions`).
		WithArgs(int64(1), int64(2), "editor").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Grants().Upsert(ctx, model.Grant{EventID: 1, UserID: 2, Role: model.RoleEditor}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTx_BeginAndCommitErrors(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewStore(db)
	ctx := context.Background()

	mock.ExpectBegin().WillReturnError(errors.New("no conn"))
	err := s.WithTx(ctx, func(repository.Repos) error { return nil })
	require.ErrorIs(t, err, errs.ErrPersistence)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("commit failed"))
	err = s.WithTx(ctx, func(repository.Repos) error { return nil })
	require.ErrorIs(t, err, errs.ErrPersistence)
	require.NoError(t, mock.ExpectationsWereMet())
}
