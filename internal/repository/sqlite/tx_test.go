package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compopedia/compopedia/internal/model"
	"github.com/compopedia/compopedia/internal/repository"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return newDB(sqlx.NewDb(conn, "sqlite")), mock
}

func countComponents(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.conn.Get(&n, `SELECT COUNT(*) FROM components`))
	return n
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")
	cat := createTestCategory(t, db, "X")

	err := db.WithTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		return tx.CreateComponent(ctx, &model.Component{Title: "Kept", Description: "d", CategoryID: cat.ID, UserID: owner.ID})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countComponents(t, db))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")

	boom := errors.New("boom")
	err := db.WithTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		cat, err := tx.FindOrCreateCategory(ctx, "Created in tx")
		if err != nil {
			return err
		}
		if err := tx.CreateComponent(ctx, &model.Component{Title: "Lost", Description: "d", CategoryID: cat.ID, UserID: owner.ID}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 0, countComponents(t, db))
	cats, err := db.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cats, "category created inside the failed transaction must be rolled back")
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")
	cat := createTestCategory(t, db, "X")

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic to propagate")
		}
		assert.Equal(t, 0, countComponents(t, db))
	}()

	_ = db.WithTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		_ = tx.CreateComponent(ctx, &model.Component{Title: "Lost", Description: "d", CategoryID: cat.ID, UserID: owner.ID})
		panic("kaput")
	})
}

func TestWithTx_NestedCallJoinsOuterTransaction(t *testing.T) {
	db := newTestDB(t)

	boom := errors.New("boom")
	err := db.WithTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		if err := tx.WithTx(ctx, func(ctx context.Context, inner repository.Store) error {
			_, err := inner.FindOrCreateCategory(ctx, "Inner")
			return err
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	cats, err := db.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestWithTx_StoreFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO components").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := db.WithTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		return tx.CreateComponent(ctx, &model.Component{Title: "t", Description: "d", CategoryID: "c", UserID: "u"})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting component")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CommitFailure(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM images").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err := db.WithTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		_, err := tx.DeleteOrphanImages(ctx, time.Time{})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "committing transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin().WillReturnError(errors.New("no connection"))

	called := false
	err := db.WithTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestListComponents_StoreFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("disk I/O error"))

	_, _, err := db.ListComponents(context.Background(), repository.ListQuery{Page: 1, Limit: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "counting components")
}
