package types

import "time"

// Purchase is a ledger entry written exactly once per successful purchase.
// Entries are never updated or deleted.
type Purchase struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int       `json:"user_id" db:"user_id"`
	SweetID    int       `json:"sweet_id" db:"sweet_id"`
	Quantity   int       `json:"quantity" db:"quantity"`
	TotalPrice float64   `json:"total_price" db:"total_price"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PurchaseCompleted is published after a purchase commits.
type PurchaseCompleted struct {
	EventID      string    `json:"event_id"`
	PurchaseID   int64     `json:"purchase_id"`
	UserID       int       `json:"user_id"`
	SweetID      int       `json:"sweet_id"`
	Quantity     int       `json:"quantity"`
	TotalPrice   float64   `json:"total_price"`
	RemainingQty int       `json:"remaining_quantity"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Stats summarises the shop for the admin dashboard.
type Stats struct {
	TotalUsers     int     `json:"total_users"`
	TotalSweets    int     `json:"total_sweets"`
	TotalStock     int     `json:"total_stock"`
	OutOfStock     int     `json:"out_of_stock"`
	TotalPurchases int     `json:"total_purchases"`
	TotalRevenue   float64 `json:"total_revenue"`
}

// SalesLine aggregates purchases of one sweet within a report window.
type SalesLine struct {
	SweetID  int     `json:"sweet_id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Revenue  float64 `json:"revenue"`
}

// SalesReport covers purchases made in [From, To).
type SalesReport struct {
	From    time.Time   `json:"from"`
	To      time.Time   `json:"to"`
	Lines   []SalesLine `json:"lines"`
	Revenue float64     `json:"revenue"`
}
