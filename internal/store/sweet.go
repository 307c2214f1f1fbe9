package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/sweetshop/apiserver/internal/db"
	"github.com/sweetshop/apiserver/types"
)

const sweetColumns = `id, name, description, category, price, quantity, image_key, created_at, updated_at`

// SweetRepository handles persistence for the inventory.
type SweetRepository struct {
	db *sql.DB
}

func NewSweetRepository(db *sql.DB) *SweetRepository {
	return &SweetRepository{db: db}
}

func (r *SweetRepository) List(ctx context.Context) ([]types.Sweet, error) {
	const query = `SELECT ` + sweetColumns + ` FROM sweets ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanSweets(rows)
}

// Search matches the free-text query against name and description and
// applies the optional category and price bounds.
func (r *SweetRepository) Search(ctx context.Context, filter types.SweetFilter) ([]types.Sweet, error) {
	const query = `
		SELECT ` + sweetColumns + `
		FROM sweets
		WHERE ($1::text = '' OR name ILIKE '%' || $1::text || '%' OR description ILIKE '%' || $1::text || '%')
		  AND ($2::text = '' OR LOWER(category) = LOWER($2::text))
		  AND price >= $3::numeric
		  AND ($4::numeric <= 0 OR price <= $4::numeric)
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, filter.Query, filter.Category, filter.MinPrice, filter.MaxPrice)
	if err != nil {
		return nil, err
	}
	return scanSweets(rows)
}

func (r *SweetRepository) Get(ctx context.Context, id int) (types.Sweet, error) {
	const query = `SELECT ` + sweetColumns + ` FROM sweets WHERE id = $1`
	var sweet types.Sweet
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sweet.ID,
		&sweet.Name,
		&sweet.Description,
		&sweet.Category,
		&sweet.Price,
		&sweet.Quantity,
		&sweet.ImageKey,
		&sweet.CreatedAt,
		&sweet.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Sweet{}, ErrNotFound
		}
		return types.Sweet{}, err
	}
	return sweet, nil
}

func (r *SweetRepository) Create(ctx context.Context, sweet types.Sweet) (types.Sweet, error) {
	now := time.Now()
	sweet.CreatedAt = now
	sweet.UpdatedAt = now

	const query = `
		INSERT INTO sweets (name, description, category, price, quantity, image_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		sweet.Name,
		sweet.Description,
		sweet.Category,
		sweet.Price,
		sweet.Quantity,
		sweet.ImageKey,
		sweet.CreatedAt,
		sweet.UpdatedAt,
	).Scan(&sweet.ID); err != nil {
		return types.Sweet{}, err
	}
	return sweet, nil
}

// Update overwrites the editable fields. The image key is left untouched.
func (r *SweetRepository) Update(ctx context.Context, sweet types.Sweet) (types.Sweet, error) {
	sweet.UpdatedAt = time.Now()

	const query = `
		UPDATE sweets
		SET name = $1,
			description = $2,
			category = $3,
			price = $4,
			quantity = $5,
			updated_at = $6
		WHERE id = $7
		RETURNING image_key, created_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		sweet.Name,
		sweet.Description,
		sweet.Category,
		sweet.Price,
		sweet.Quantity,
		sweet.UpdatedAt,
		sweet.ID,
	).Scan(&sweet.ImageKey, &sweet.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Sweet{}, ErrNotFound
		}
		return types.Sweet{}, err
	}
	return sweet, nil
}

// Delete removes a sweet. Sweets referenced by the purchase ledger cannot be
// deleted and yield ErrConflict.
func (r *SweetRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM sweets WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrConflict
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SweetRepository) SetImage(ctx context.Context, id int, imageKey string) error {
	const query = `UPDATE sweets SET image_key = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, imageKey, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Purchase decrements stock and records the ledger entry in one transaction.
// The sweet row is locked FOR UPDATE so concurrent buyers of the same sweet
// are serialized; the lock is released by the commit or rollback in
// db.WithTx. It returns the ledger entry and the quantity left on hand.
func (r *SweetRepository) Purchase(ctx context.Context, userID, sweetID, quantity int) (types.Purchase, int, error) {
	purchase := types.Purchase{
		UserID:   userID,
		SweetID:  sweetID,
		Quantity: quantity,
	}
	var remaining int

	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		const lockQuery = `SELECT quantity, price FROM sweets WHERE id = $1 FOR UPDATE`
		var available int
		var price float64
		if err := tx.QueryRowContext(ctx, lockQuery, sweetID).Scan(&available, &price); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInsufficientStock
			}
			return err
		}
		if available < quantity {
			return ErrInsufficientStock
		}

		now := time.Now()
		remaining = available - quantity
		const updateQuery = `UPDATE sweets SET quantity = $1, updated_at = $2 WHERE id = $3`
		if _, err := tx.ExecContext(ctx, updateQuery, remaining, now, sweetID); err != nil {
			return err
		}

		purchase.TotalPrice = LineTotal(price, quantity)
		purchase.CreatedAt = now
		const insertQuery = `
			INSERT INTO purchases (user_id, sweet_id, quantity, total_price, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`
		if err := tx.QueryRowContext(
			ctx,
			insertQuery,
			purchase.UserID,
			purchase.SweetID,
			purchase.Quantity,
			purchase.TotalPrice,
			purchase.CreatedAt,
		).Scan(&purchase.ID); err != nil {
			if isForeignKeyViolation(err) {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return types.Purchase{}, 0, err
	}
	return purchase, remaining, nil
}

// Restock adds quantity to the stock on hand in a single statement.
func (r *SweetRepository) Restock(ctx context.Context, sweetID, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}

	const query = `
		UPDATE sweets
		SET quantity = quantity + $1,
			updated_at = $2
		WHERE id = $3
		RETURNING quantity`
	var updated int
	if err := r.db.QueryRowContext(ctx, query, quantity, time.Now(), sweetID).Scan(&updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return updated, nil
}

// LineTotal is the price of quantity units, rounded to cents.
func LineTotal(unitPrice float64, quantity int) float64 {
	return math.Round(unitPrice*float64(quantity)*100) / 100
}

func scanSweets(rows *sql.Rows) ([]types.Sweet, error) {
	defer rows.Close()

	sweets := make([]types.Sweet, 0)
	for rows.Next() {
		var sweet types.Sweet
		if err := rows.Scan(
			&sweet.ID,
			&sweet.Name,
			&sweet.Description,
			&sweet.Category,
			&sweet.Price,
			&sweet.Quantity,
			&sweet.ImageKey,
			&sweet.CreatedAt,
			&sweet.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sweets = append(sweets, sweet)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sweets, nil
}
