package types

import "time"

// Sweet represents an item in the shop inventory.
type Sweet struct {
	// ID is the unique identifier of the sweet.
	ID int `json:"id" db:"id"`

	// Name is the display name shown in the catalogue.
	Name string `json:"name" db:"name"`

	// Description is free-form marketing text.
	Description string `json:"description" db:"description"`

	// Category groups sweets for filtering (e.g. "chocolate", "candy").
	Category string `json:"category" db:"category"`

	// Price is the unit price. It is never negative.
	Price float64 `json:"price" db:"price"`

	// Quantity is the stock on hand. It is never negative.
	Quantity int `json:"quantity" db:"quantity"`

	// ImageKey is the object storage key of the product image, if one
	// has been uploaded.
	ImageKey string `json:"image_key,omitempty" db:"image_key"`

	// CreatedAt is the timestamp at which the sweet was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the sweet.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SweetFilter narrows a catalogue search. Zero values do not filter.
type SweetFilter struct {
	Query    string
	Category string
	MinPrice float64
	// MaxPrice of zero means unbounded.
	MaxPrice float64
}
