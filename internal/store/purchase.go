package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sweetshop/apiserver/types"
)

// PurchaseRepository reads the purchase ledger. Rows are written only by
// SweetRepository.Purchase and are never updated or deleted.
type PurchaseRepository struct {
	db *sql.DB
}

func NewPurchaseRepository(db *sql.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// ListByUser returns a user's purchases, newest first.
func (r *PurchaseRepository) ListByUser(ctx context.Context, userID int) ([]types.Purchase, error) {
	const query = `
		SELECT id, user_id, sweet_id, quantity, total_price, created_at
		FROM purchases
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]types.Purchase, 0)
	for rows.Next() {
		var p types.Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.SweetID, &p.Quantity, &p.TotalPrice, &p.CreatedAt); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (r *PurchaseRepository) Get(ctx context.Context, id int64) (types.Purchase, error) {
	const query = `
		SELECT id, user_id, sweet_id, quantity, total_price, created_at
		FROM purchases
		WHERE id = $1`
	var p types.Purchase
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.UserID, &p.SweetID, &p.Quantity, &p.TotalPrice, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Purchase{}, ErrNotFound
		}
		return types.Purchase{}, err
	}
	return p, nil
}

// Stats aggregates the dashboard counters in a single round trip.
func (r *PurchaseRepository) Stats(ctx context.Context) (types.Stats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM sweets),
			(SELECT COALESCE(SUM(quantity), 0) FROM sweets),
			(SELECT COUNT(*) FROM sweets WHERE quantity = 0),
			(SELECT COUNT(*) FROM purchases),
			(SELECT COALESCE(SUM(total_price), 0) FROM purchases)`
	var stats types.Stats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalUsers,
		&stats.TotalSweets,
		&stats.TotalStock,
		&stats.OutOfStock,
		&stats.TotalPurchases,
		&stats.TotalRevenue,
	)
	if err != nil {
		return types.Stats{}, err
	}
	return stats, nil
}

// SalesReport groups purchases in [from, to) by sweet, best sellers first.
func (r *PurchaseRepository) SalesReport(ctx context.Context, from, to time.Time) (types.SalesReport, error) {
	const query = `
		SELECT s.id, s.name, SUM(p.quantity), SUM(p.total_price)
		FROM purchases p
		JOIN sweets s ON s.id = p.sweet_id
		WHERE p.created_at >= $1 AND p.created_at < $2
		GROUP BY s.id, s.name
		ORDER BY SUM(p.total_price) DESC, s.id`
	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return types.SalesReport{}, err
	}
	defer rows.Close()

	report := types.SalesReport{From: from, To: to, Lines: make([]types.SalesLine, 0)}
	for rows.Next() {
		var line types.SalesLine
		if err := rows.Scan(&line.SweetID, &line.Name, &line.Quantity, &line.Revenue); err != nil {
			return types.SalesReport{}, err
		}
		report.Lines = append(report.Lines, line)
		report.Revenue += line.Revenue
	}
	if err := rows.Err(); err != nil {
		return types.SalesReport{}, err
	}
	report.Revenue = LineTotal(report.Revenue, 1)
	return report, nil
}
