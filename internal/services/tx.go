package services

import (
	"context"
	"database/sql"

	"github.com/bookstore/apiserver/internal/db"
	"github.com/bookstore/apiserver/internal/store"
	"github.com/bookstore/apiserver/types"
)

// StockStore is the book access a purchase transaction needs.
type StockStore interface {
	Get(ctx context.Context, id int) (types.Book, error)
	DecrementStock(ctx context.Context, id int) (int, error)
	IncrementStock(ctx context.Context, id int) error
}

// PurchaseLedger defines persistence operations for purchases.
type PurchaseLedger interface {
	Create(ctx context.Context, purchase types.Purchase) (types.Purchase, error)
	ListByUser(ctx context.Context, userID int) ([]types.Purchase, error)
	GetForUser(ctx context.Context, id, userID int) (types.Purchase, error)
	DeleteForUser(ctx context.Context, id, userID int) (types.Purchase, error)
}

// TxRepos are repositories bound to a single transaction.
type TxRepos struct {
	Books     StockStore
	Purchases PurchaseLedger
}

// TxRunner runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, repos TxRepos) error) error
}

// SQLTxRunner implements TxRunner on a database/sql pool.
type SQLTxRunner struct {
	conn *sql.DB
}

func NewSQLTxRunner(conn *sql.DB) *SQLTxRunner {
	return &SQLTxRunner{conn: conn}
}

func (r *SQLTxRunner) InTx(ctx context.Context, fn func(ctx context.Context, repos TxRepos) error) error {
	return db.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, TxRepos{
			Books:     store.NewBookRepository(tx),
			Purchases: store.NewPurchaseRepository(tx),
		})
	})
}
