package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/bookstore/apiserver/internal/metrics"
	"github.com/bookstore/apiserver/internal/store"
	"github.com/bookstore/apiserver/types"
)

// PurchaseService orchestrates buying and canceling. Every create and
// cancel runs in one transaction so stock and the ledger move together.
type PurchaseService struct {
	tx     TxRunner
	ledger PurchaseLedger
	events EventPublisher
	now    func() time.Time
}

// NewPurchaseService constructs a PurchaseService. ledger serves reads
// outside of transactions. events may be nil.
func NewPurchaseService(tx TxRunner, ledger PurchaseLedger, events EventPublisher) *PurchaseService {
	if events == nil {
		events = noopEvents{}
	}
	return &PurchaseService{
		tx:     tx,
		ledger: ledger,
		events: events,
		now:    time.Now,
	}
}

// Create buys one unit of bookID for userID. It fails with
// store.ErrNotFound when the book does not exist and store.ErrOutOfStock
// when no unit is left, leaving no partial effects in either case.
func (s *PurchaseService) Create(ctx context.Context, userID, bookID int) (types.Purchase, error) {
	var purchase types.Purchase
	err := s.tx.InTx(ctx, func(ctx context.Context, repos TxRepos) error {
		book, err := repos.Books.Get(ctx, bookID)
		if err != nil {
			return err
		}
		if book.Stock < 1 {
			return store.ErrOutOfStock
		}

		// DecrementStock re-checks stock under the row lock.
		if _, err := repos.Books.DecrementStock(ctx, bookID); err != nil {
			return err
		}

		purchase, err = repos.Purchases.Create(ctx, types.Purchase{
			UserID:    userID,
			BookID:    bookID,
			CreatedAt: s.now().UTC(),
		})
		if err != nil {
			return err
		}
		purchase.Book = &types.BookRef{ID: book.ID, Title: book.Title}
		return nil
	})
	if err != nil {
		metrics.PurchasesTotal.WithLabelValues(purchaseResult(err)).Inc()
		return types.Purchase{}, err
	}

	metrics.PurchasesTotal.WithLabelValues(metrics.ResultCreated).Inc()
	zerolog.Ctx(ctx).Info().
		Int("purchase_id", purchase.ID).
		Int("user_id", userID).
		Int("book_id", bookID).
		Msg("purchase created")
	s.publish(ctx, EventPurchaseCreated, purchase)
	return purchase, nil
}

// Cancel removes the caller's purchase and returns its unit to stock. A
// purchase owned by someone else is reported as store.ErrNotFound. If the
// book has been deleted the purchase is still removed.
func (s *PurchaseService) Cancel(ctx context.Context, userID, purchaseID int) (types.Purchase, error) {
	var purchase types.Purchase
	err := s.tx.InTx(ctx, func(ctx context.Context, repos TxRepos) error {
		var err error
		purchase, err = repos.Purchases.DeleteForUser(ctx, purchaseID, userID)
		if err != nil {
			return err
		}
		if err := repos.Books.IncrementStock(ctx, purchase.BookID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		result := metrics.ResultError
		if errors.Is(err, store.ErrNotFound) {
			result = metrics.ResultNotFound
		}
		metrics.CancellationsTotal.WithLabelValues(result).Inc()
		return types.Purchase{}, err
	}

	metrics.CancellationsTotal.WithLabelValues(metrics.ResultCanceled).Inc()
	zerolog.Ctx(ctx).Info().
		Int("purchase_id", purchase.ID).
		Int("user_id", userID).
		Int("book_id", purchase.BookID).
		Msg("purchase canceled")
	s.publish(ctx, EventPurchaseCanceled, purchase)
	return purchase, nil
}

// List returns the caller's purchases, newest first. An empty history is
// reported as store.ErrNotFound.
func (s *PurchaseService) List(ctx context.Context, userID int) ([]types.Purchase, error) {
	purchases, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(purchases) == 0 {
		return nil, store.ErrNotFound
	}
	return purchases, nil
}

// Get returns one of the caller's purchases.
func (s *PurchaseService) Get(ctx context.Context, userID, purchaseID int) (types.Purchase, error) {
	return s.ledger.GetForUser(ctx, purchaseID, userID)
}

// publishTimeout bounds the post-commit publish, which outlives the request
// context.
const publishTimeout = 5 * time.Second

// publish runs after commit. A delivery failure does not undo the purchase.
// The caller's cancellation is detached so a disconnect after commit does not
// drop the event.
func (s *PurchaseService) publish(ctx context.Context, eventType string, p types.Purchase) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	evt := PurchaseEvent{
		Type:       eventType,
		PurchaseID: p.ID,
		UserID:     p.UserID,
		BookID:     p.BookID,
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.PublishPurchase(ctx, evt); err != nil {
		metrics.EventPublishFailuresTotal.Inc()
		zerolog.Ctx(ctx).Error().Err(err).
			Str("type", eventType).
			Int("purchase_id", p.ID).
			Msg("failed to publish purchase event")
	}
}

func purchaseResult(err error) string {
	switch {
	case errors.Is(err, store.ErrOutOfStock):
		return metrics.ResultOutOfStock
	case errors.Is(err, store.ErrNotFound):
		return metrics.ResultNotFound
	default:
		return metrics.ResultError
	}
}
