package types

import "time"

// Book represents a catalog entry that can be purchased.
type Book struct {
	// ID is the unique identifier of the book.
	ID int `json:"id" db:"id"`

	// Title is the unique, human-readable name of the book.
	Title string `json:"title" db:"title"`

	// Description is an optional blurb. Nil when not provided.
	Description *string `json:"description" db:"description"`

	// Price is the unit price. Never negative.
	Price float64 `json:"price" db:"price"`

	// Stock is the number of purchasable units. Never negative.
	Stock int `json:"stock" db:"stock"`

	// CoverKey is the object storage key of the cover image, empty when
	// no cover has been uploaded.
	CoverKey string `json:"cover_key,omitempty" db:"cover_key"`

	// CreatedAt is the timestamp at which the book was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the book.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BookPatch holds the subset of fields supplied to a partial update.
// Nil fields are left unchanged.
type BookPatch struct {
	Title       *string
	Description *string
	Price       *float64
	Stock       *int
}

// Empty reports whether the patch changes nothing.
func (p BookPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Price == nil && p.Stock == nil
}
