package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bookstore/apiserver/internal/db"
	"github.com/bookstore/apiserver/types"
)

const bookColumns = `id, title, description, price, stock, cover_key, created_at, updated_at`

// BookRepository handles persistence for books.
type BookRepository struct {
	db db.DBTX
}

func NewBookRepository(conn db.DBTX) *BookRepository {
	return &BookRepository{db: conn}
}

// ListInStock returns every book with at least one unit available.
func (r *BookRepository) ListInStock(ctx context.Context) ([]types.Book, error) {
	const query = `
		SELECT ` + bookColumns + `
		FROM books
		WHERE stock > 0
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]types.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *BookRepository) Get(ctx context.Context, id int) (types.Book, error) {
	const query = `
		SELECT ` + bookColumns + `
		FROM books
		WHERE id = $1`
	book, err := scanBook(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, err
	}
	return book, nil
}

func (r *BookRepository) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	const query = `
		INSERT INTO books (title, description, price, stock, cover_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		book.Title,
		book.Description,
		book.Price,
		book.Stock,
		book.CoverKey,
		book.CreatedAt,
		book.UpdatedAt,
	).Scan(&book.ID); err != nil {
		return types.Book{}, mapWriteError(err)
	}
	return book, nil
}

// Update applies the non-nil fields of patch in a single statement so that
// concurrent stock changes are never overwritten by stale values.
func (r *BookRepository) Update(ctx context.Context, id int, patch types.BookPatch) (types.Book, error) {
	const query = `
		UPDATE books
		SET title = COALESCE($1::text, title),
			description = COALESCE($2::text, description),
			price = COALESCE($3::numeric, price),
			stock = COALESCE($4::integer, stock),
			updated_at = $5
		WHERE id = $6
		RETURNING ` + bookColumns
	book, err := scanBook(r.db.QueryRowContext(
		ctx,
		query,
		patch.Title,
		patch.Description,
		patch.Price,
		patch.Stock,
		time.Now(),
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, mapWriteError(err)
	}
	return book, nil
}

func (r *BookRepository) SetCoverKey(ctx context.Context, id int, key string) (types.Book, error) {
	const query = `
		UPDATE books
		SET cover_key = $1,
			updated_at = $2
		WHERE id = $3
		RETURNING ` + bookColumns
	book, err := scanBook(r.db.QueryRowContext(ctx, query, key, time.Now(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, err
	}
	return book, nil
}

// Delete removes the book and returns the deleted record.
func (r *BookRepository) Delete(ctx context.Context, id int) (types.Book, error) {
	const query = `DELETE FROM books WHERE id = $1 RETURNING ` + bookColumns
	book, err := scanBook(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, err
	}
	return book, nil
}

// DecrementStock takes one unit of the book if at least one is available.
// The check and the write are a single conditional UPDATE, so concurrent
// callers can never drive stock below zero. It returns the remaining stock,
// ErrOutOfStock when no unit was left, or ErrNotFound when the book does not
// exist.
func (r *BookRepository) DecrementStock(ctx context.Context, id int) (int, error) {
	const query = `
		UPDATE books
		SET stock = stock - 1,
			updated_at = $1
		WHERE id = $2 AND stock > 0
		RETURNING stock`
	var remaining int
	err := r.db.QueryRowContext(ctx, query, time.Now(), id).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrNotFound
	}
	return 0, ErrOutOfStock
}

// IncrementStock returns one unit to the book. ErrNotFound means the book
// has been deleted.
func (r *BookRepository) IncrementStock(ctx context.Context, id int) error {
	const query = `
		UPDATE books
		SET stock = stock + 1,
			updated_at = $1
		WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
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

func (r *BookRepository) exists(ctx context.Context, id int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (types.Book, error) {
	var book types.Book
	var description sql.NullString
	err := row.Scan(
		&book.ID,
		&book.Title,
		&description,
		&book.Price,
		&book.Stock,
		&book.CoverKey,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		return types.Book{}, err
	}
	if description.Valid {
		book.Description = &description.String
	}
	return book, nil
}
