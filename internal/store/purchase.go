package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bookstore/apiserver/internal/db"
	"github.com/bookstore/apiserver/types"
)

// PurchaseRepository handles persistence for the purchase ledger.
type PurchaseRepository struct {
	db db.DBTX
}

func NewPurchaseRepository(conn db.DBTX) *PurchaseRepository {
	return &PurchaseRepository{db: conn}
}

func (r *PurchaseRepository) Create(ctx context.Context, purchase types.Purchase) (types.Purchase, error) {
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO purchases (user_id, book_id, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		purchase.UserID,
		purchase.BookID,
		purchase.CreatedAt,
	).Scan(&purchase.ID); err != nil {
		return types.Purchase{}, err
	}
	return purchase, nil
}

// ListByUser returns the user's purchases, newest first.
func (r *PurchaseRepository) ListByUser(ctx context.Context, userID int) ([]types.Purchase, error) {
	const query = `
		SELECT p.id, p.user_id, p.book_id, p.created_at, u.name, b.title
		FROM purchases p
		JOIN users u ON u.id = p.user_id
		LEFT JOIN books b ON b.id = p.book_id
		WHERE p.user_id = $1
		ORDER BY p.created_at DESC, p.id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]types.Purchase, 0)
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return purchases, nil
}

// GetForUser returns the purchase only when it belongs to userID.
func (r *PurchaseRepository) GetForUser(ctx context.Context, id, userID int) (types.Purchase, error) {
	const query = `
		SELECT p.id, p.user_id, p.book_id, p.created_at, u.name, b.title
		FROM purchases p
		JOIN users u ON u.id = p.user_id
		LEFT JOIN books b ON b.id = p.book_id
		WHERE p.id = $1 AND p.user_id = $2`
	purchase, err := scanPurchase(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Purchase{}, ErrNotFound
		}
		return types.Purchase{}, err
	}
	return purchase, nil
}

// DeleteForUser removes the purchase owned by userID and returns it.
// Only one of several concurrent deletes of the same purchase can succeed;
// the rest get ErrNotFound.
func (r *PurchaseRepository) DeleteForUser(ctx context.Context, id, userID int) (types.Purchase, error) {
	const query = `
		DELETE FROM purchases
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, book_id, created_at`
	var purchase types.Purchase
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(
		&purchase.ID,
		&purchase.UserID,
		&purchase.BookID,
		&purchase.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Purchase{}, ErrNotFound
		}
		return types.Purchase{}, err
	}
	return purchase, nil
}

func scanPurchase(row rowScanner) (types.Purchase, error) {
	var purchase types.Purchase
	var userName string
	var bookTitle sql.NullString
	if err := row.Scan(
		&purchase.ID,
		&purchase.UserID,
		&purchase.BookID,
		&purchase.CreatedAt,
		&userName,
		&bookTitle,
	); err != nil {
		return types.Purchase{}, err
	}

	purchase.User = &types.UserRef{ID: purchase.UserID, Name: userName}
	if bookTitle.Valid {
		purchase.Book = &types.BookRef{ID: purchase.BookID, Title: bookTitle.String}
	}
	return purchase, nil
}
