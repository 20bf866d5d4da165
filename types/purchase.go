package types

import "time"

// Purchase links a user to one unit of a book bought at CreatedAt.
// Each purchase corresponds to exactly one decremented unit of stock.
type Purchase struct {
	// ID is the unique identifier of the purchase.
	ID int `json:"id" db:"id"`

	// UserID identifies the buyer.
	UserID int `json:"user_id" db:"user_id"`

	// BookID identifies the purchased book. The book may have been
	// deleted since.
	BookID int `json:"book_id" db:"book_id"`

	// CreatedAt is the time of purchase.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// User is a short reference to the buyer, populated on reads.
	User *UserRef `json:"user,omitempty"`

	// Book is a short reference to the book, populated on reads.
	// Nil when the book no longer exists.
	Book *BookRef `json:"book,omitempty"`
}

// UserRef is the public projection of a user embedded in purchases.
type UserRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// BookRef is the public projection of a book embedded in purchases.
type BookRef struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}
