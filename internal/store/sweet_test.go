package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetshop/apiserver/types"
)

var (
	lockSweetSQL      = regexp.QuoteMeta(`SELECT quantity, price FROM sweets WHERE id = $1 FOR UPDATE`)
	updateStockSQL    = regexp.QuoteMeta(`UPDATE sweets SET quantity = $1, updated_at = $2 WHERE id = $3`)
	insertPurchaseSQL = regexp.QuoteMeta(`INSERT INTO purchases (user_id, sweet_id, quantity, total_price, created_at)`)
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func sweetRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "description", "category", "price", "quantity", "image_key", "created_at", "updated_at"})
}

func TestSweetPurchaseCommits(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSweetSQL).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"quantity", "price"}).AddRow(10, 2.5))
	mock.ExpectExec(updateStockSQL).
		WithArgs(6, sqlmock.AnyArg(), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertPurchaseSQL).
		WithArgs(3, 7, 4, 10.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(99)))
	mock.ExpectCommit()

	purchase, remaining, err := repo.Purchase(context.Background(), 3, 7, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(99), purchase.ID)
	assert.Equal(t, 10.0, purchase.TotalPrice)
	assert.Equal(t, 4, purchase.Quantity)
	assert.Equal(t, 6, remaining)
	assert.False(t, purchase.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetPurchaseInsufficientStockRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSweetSQL).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"quantity", "price"}).AddRow(10, 2.5))
	mock.ExpectRollback()

	_, _, err := repo.Purchase(context.Background(), 3, 7, 11)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet(), "no stock update or ledger insert may run")
}

func TestSweetPurchaseMissingSweet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSweetSQL).
		WithArgs(404).
		WillReturnRows(sqlmock.NewRows([]string{"quantity", "price"}))
	mock.ExpectRollback()

	_, _, err := repo.Purchase(context.Background(), 3, 404, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetPurchaseLedgerFailureRollsBackStock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)
	boom := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectQuery(lockSweetSQL).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"quantity", "price"}).AddRow(5, 1.0))
	mock.ExpectExec(updateStockSQL).
		WithArgs(2, sqlmock.AnyArg(), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertPurchaseSQL).WillReturnError(boom)
	mock.ExpectRollback()

	_, _, err := repo.Purchase(context.Background(), 3, 7, 3)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetPurchaseUnknownUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSweetSQL).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"quantity", "price"}).AddRow(5, 1.0))
	mock.ExpectExec(updateStockSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertPurchaseSQL).WillReturnError(&pq.Error{Code: pqForeignKeyViolation})
	mock.ExpectRollback()

	_, _, err := repo.Purchase(context.Background(), 12345, 7, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetPurchaseCommitFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSweetSQL).
		WillReturnRows(sqlmock.NewRows([]string{"quantity", "price"}).AddRow(5, 1.0))
	mock.ExpectExec(updateStockSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertPurchaseSQL).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	_, remaining, err := repo.Purchase(context.Background(), 3, 7, 1)
	assert.Error(t, err)
	assert.Zero(t, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetRestock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SET quantity = quantity + $1`)).
		WithArgs(5, sqlmock.AnyArg(), 7).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(15))

	updated, err := repo.Restock(context.Background(), 7, 5)
	require.NoError(t, err)
	assert.Equal(t, 15, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetRestockValidation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)

	_, err := repo.Restock(context.Background(), 7, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = repo.Restock(context.Background(), 7, -2)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	mock.ExpectQuery(regexp.QuoteMeta(`SET quantity = quantity + $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}))
	_, err = repo.Restock(context.Background(), 404, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)
	now := time.Now()

	mock.ExpectQuery(`FROM sweets WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(sweetRows().AddRow(1, "Fudge", "Soft", "toffee", 2.5, 10, "", now, now))

	sweet, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Fudge", sweet.Name)
	assert.Equal(t, 2.5, sweet.Price)
	assert.Equal(t, 10, sweet.Quantity)

	mock.ExpectQuery(`FROM sweets WHERE id = \$1`).
		WithArgs(2).
		WillReturnRows(sweetRows())
	_, err = repo.Get(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetSearchPassesFilter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)
	now := time.Now()

	mock.ExpectQuery(`ILIKE`).
		WithArgs("choc", "bars", 1.0, 0.0).
		WillReturnRows(sweetRows().
			AddRow(1, "Chocolate bar", "", "bars", 1.5, 3, "", now, now).
			AddRow(2, "Dark chocolate", "", "bars", 2.0, 0, "bars/2.png", now, now))

	sweets, err := repo.Search(context.Background(), types.SweetFilter{Query: "choc", Category: "bars", MinPrice: 1})
	require.NoError(t, err)
	require.Len(t, sweets, 2)
	assert.Equal(t, "bars/2.png", sweets[1].ImageKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetListEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)

	mock.ExpectQuery(`FROM sweets ORDER BY id`).WillReturnRows(sweetRows())

	sweets, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sweets)
	assert.Empty(t, sweets)
}

func TestSweetUpdateMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)

	mock.ExpectQuery(`UPDATE sweets`).
		WillReturnRows(sqlmock.NewRows([]string{"image_key", "created_at"}))

	_, err := repo.Update(context.Background(), types.Sweet{ID: 9, Name: "x", Category: "y"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweetDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSweetRepository(db)

	mock.ExpectExec(`DELETE FROM sweets`).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Delete(context.Background(), 1))

	mock.ExpectExec(`DELETE FROM sweets`).WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), 2), ErrNotFound)

	mock.ExpectExec(`DELETE FROM sweets`).WithArgs(3).WillReturnError(&pq.Error{Code: pqForeignKeyViolation})
	assert.ErrorIs(t, repo.Delete(context.Background(), 3), ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLineTotal(t *testing.T) {
	assert.Equal(t, 10.0, LineTotal(2.5, 4))
	assert.Equal(t, 0.3, LineTotal(0.1, 3))
	assert.Equal(t, 0.0, LineTotal(0, 100))
}
