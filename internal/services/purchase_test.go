package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bookstore/apiserver/internal/store"
	"github.com/bookstore/apiserver/types"
)

type purchaseFixture struct {
	svc    *PurchaseService
	db     *memDB
	events *recordedEvents
	buyer  types.User
	other  types.User
}

func newPurchaseFixture(t *testing.T) purchaseFixture {
	t.Helper()
	db := newMemDB()
	events := &recordedEvents{}
	svc := NewPurchaseService(&memTx{db: db}, memLedger{db}, events)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return purchaseFixture{
		svc:    svc,
		db:     db,
		events: events,
		buyer:  db.seedUser("buyer", types.RoleStandard),
		other:  db.seedUser("other", types.RoleStandard),
	}
}

func TestPurchaseService_Create(t *testing.T) {
	f := newPurchaseFixture(t)
	book := f.db.seedBook("Dune", 2)

	purchase, err := f.svc.Create(context.Background(), f.buyer.ID, book.ID)
	require.NoError(t, err)
	require.NotZero(t, purchase.ID)
	require.Equal(t, f.buyer.ID, purchase.UserID)
	require.Equal(t, book.ID, purchase.BookID)
	require.Equal(t, &types.BookRef{ID: book.ID, Title: "Dune"}, purchase.Book)
	require.Equal(t, 1, f.db.stock(book.ID))

	require.Len(t, f.events.events, 1)
	evt := f.events.events[0]
	require.Equal(t, EventPurchaseCreated, evt.Type)
	require.Equal(t, purchase.ID, evt.PurchaseID)
	require.Equal(t, book.ID, evt.BookID)
}

func TestPurchaseService_Create_OutOfStock(t *testing.T) {
	f := newPurchaseFixture(t)
	book := f.db.seedBook("Dune", 0)

	_, err := f.svc.Create(context.Background(), f.buyer.ID, book.ID)
	require.ErrorIs(t, err, store.ErrOutOfStock)
	require.Equal(t, 0, f.db.stock(book.ID))
	require.Zero(t, f.db.purchaseCount())
	require.Empty(t, f.events.events)
}

func TestPurchaseService_Create_MissingBook(t *testing.T) {
	f := newPurchaseFixture(t)

	_, err := f.svc.Create(context.Background(), f.buyer.ID, 404)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Zero(t, f.db.purchaseCount())
}

func TestPurchaseService_Create_RollsBackStockOnLedgerFailure(t *testing.T) {
	f := newPurchaseFixture(t)
	book := f.db.seedBook("Dune", 1)
	f.db.failPurchaseInsert = errors.New("insert failed")

	_, err := f.svc.Create(context.Background(), f.buyer.ID, book.ID)
	require.EqualError(t, err, "insert failed")
	require.Equal(t, 1, f.db.stock(book.ID))
	require.Zero(t, f.db.purchaseCount())
}

// memTx runs transactions one at a time, so this checks the service's stock
// bookkeeping across many buyers. The conditional UPDATE that guards truly
// parallel transactions is covered by TestSQLTxRunner_LostRaceRollsBack and
// the e2e suite.
func TestPurchaseService_Create_ManyBuyersLastUnitSoldOnce(t *testing.T) {
	f := newPurchaseFixture(t)
	book := f.db.seedBook("Dune", 1)

	const buyers = 20
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		outOfStock int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), f.buyer.ID, book.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, store.ErrOutOfStock):
				outOfStock++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)
	require.Equal(t, buyers-1, outOfStock)
	require.Equal(t, 0, f.db.stock(book.ID))
	require.Equal(t, 1, f.db.purchaseCount())
}

func TestPurchaseService_CreateThenCancel_RestoresStock(t *testing.T) {
	f := newPurchaseFixture(t)
	book := f.db.seedBook("Dune", 3)

	purchase, err := f.svc.Create(context.Background(), f.buyer.ID, book.ID)
	require.NoError(t, err)
	require.Equal(t, 2, f.db.stock(book.ID))

	canceled, err := f.svc.Cancel(context.Background(), f.buyer.ID, purchase.ID)
	require.NoError(t, err)
	require.Equal(t, purchase.ID, canceled.ID)
	require.Equal(t, 3, f.db.stock(book.ID))
	require.Zero(t, f.db.purchaseCount())

	require.Len(t, f.events.events, 2)
	require.Equal(t, EventPurchaseCanceled, f.events.events[1].Type)
}

func TestPurchaseService_Cancel_Twice(t *testing.T) {
	f := newPurchaseFixture(t)
	book := f.db.seedBook("Dune", 1)

	purchase, err := f.svc.Create(context.Background(), f.buyer.ID, book.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), f.buyer.ID, purchase.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), f.buyer.ID, purchase.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, 1, f.db.stock(book.ID))
}

func TestPurchaseService_Cancel_ConcurrentRestocksOnce(t *testing.T) {
	f := newPurchaseFixture(t)
	book := f.db.seedBook("Dune", 1)
	purchase, err := f.svc.Create(context.Background(), f.buyer.ID, book.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Cancel(context.Background(), f.buyer.ID, purchase.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, store.ErrNotFound)
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, f.db.stock(book.ID))
}

func TestPurchaseService_Cancel_OtherUsersPurchase(t *testing.T) {
	f := newPurchaseFixture(t)
	book := f.db.seedBook("Dune", 1)
	purchase, err := f.svc.Create(context.Background(), f.buyer.ID, book.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), f.other.ID, purchase.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, 0, f.db.stock(book.ID))
	require.Equal(t, 1, f.db.purchaseCount())
}

func TestPurchaseService_Cancel_AfterBookDeleted(t *testing.T) {
	f := newPurchaseFixture(t)
	book := f.db.seedBook("Dune", 1)
	purchase, err := f.svc.Create(context.Background(), f.buyer.ID, book.ID)
	require.NoError(t, err)

	_, err = f.db.Delete(context.Background(), book.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), f.buyer.ID, purchase.ID)
	require.NoError(t, err)
	require.Zero(t, f.db.purchaseCount())
}

func TestPurchaseService_ListAndGet_ScopedToOwner(t *testing.T) {
	f := newPurchaseFixture(t)
	book := f.db.seedBook("Dune", 5)

	_, err := f.svc.List(context.Background(), f.buyer.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	first, err := f.svc.Create(context.Background(), f.buyer.ID, book.ID)
	require.NoError(t, err)
	second, err := f.svc.Create(context.Background(), f.buyer.ID, book.ID)
	require.NoError(t, err)

	purchases, err := f.svc.List(context.Background(), f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, purchases, 2)
	require.Equal(t, second.ID, purchases[0].ID)
	require.Equal(t, first.ID, purchases[1].ID)
	require.Equal(t, "buyer", purchases[0].User.Name)

	got, err := f.svc.Get(context.Background(), f.buyer.ID, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)

	_, err = f.svc.Get(context.Background(), f.other.ID, first.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.List(context.Background(), f.other.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPurchaseService_PublishOutlivesCanceledRequest(t *testing.T) {
	f := newPurchaseFixture(t)
	book := f.db.seedBook("Dune", 1)

	// The in-memory store ignores cancellation, standing in for a client
	// that disconnects right after commit.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Create(ctx, f.buyer.ID, book.ID)
	require.NoError(t, err)

	require.Len(t, f.events.ctxErrs, 1)
	require.NoError(t, f.events.ctxErrs[0])
	require.WithinDuration(t, time.Now().Add(publishTimeout), f.events.deadlines[0], time.Second)
}

func TestPurchaseService_PublishFailureKeepsPurchase(t *testing.T) {
	f := newPurchaseFixture(t)
	f.events.err = errors.New("broker down")
	book := f.db.seedBook("Dune", 1)

	purchase, err := f.svc.Create(context.Background(), f.buyer.ID, book.ID)
	require.NoError(t, err)
	require.NotZero(t, purchase.ID)
	require.Equal(t, 1, f.db.purchaseCount())
}

func TestNewPurchaseService_NilEvents(t *testing.T) {
	db := newMemDB()
	svc := NewPurchaseService(&memTx{db: db}, memLedger{db}, nil)
	user := db.seedUser("buyer", types.RoleStandard)
	book := db.seedBook("Dune", 1)

	_, err := svc.Create(context.Background(), user.ID, book.ID)
	require.NoError(t, err)
}
