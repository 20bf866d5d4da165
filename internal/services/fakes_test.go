package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/bookstore/apiserver/internal/store"
	"github.com/bookstore/apiserver/types"
)

// memDB is an in-memory stand-in for the users, books and purchases tables.
type memDB struct {
	mu        sync.Mutex
	users     map[int]types.User
	books     map[int]types.Book
	purchases map[int]types.Purchase
	nextID    int

	// failPurchaseInsert makes the next purchase insert fail.
	failPurchaseInsert error
}

func newMemDB() *memDB {
	return &memDB{
		users:     map[int]types.User{},
		books:     map[int]types.Book{},
		purchases: map[int]types.Purchase{},
	}
}

func (m *memDB) id() int {
	m.nextID++
	return m.nextID
}

// Users

func (m *memDB) GetByID(_ context.Context, id int) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memDB) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memDB) createUser(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = m.id()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *memDB) SetRole(_ context.Context, email string, role types.Role) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.Email == email {
			u.Role = role
			m.users[id] = u
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memDB) seedUser(name string, role types.Role) types.User {
	u, err := m.createUser(context.Background(), types.User{Name: name, Email: name + "@example.com", Role: role})
	if err != nil {
		panic(err)
	}
	return u
}

// Books

func (m *memDB) ListInStock(_ context.Context) ([]types.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	books := make([]types.Book, 0)
	for _, b := range m.books {
		if b.Stock > 0 {
			books = append(books, b)
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}

func (m *memDB) Get(_ context.Context, id int) (types.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	return b, nil
}

func (m *memDB) createBook(_ context.Context, book types.Book) (types.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.Title == book.Title {
			return types.Book{}, store.ErrConflict
		}
	}
	book.ID = m.id()
	book.CreatedAt = time.Now()
	book.UpdatedAt = book.CreatedAt
	m.books[book.ID] = book
	return book, nil
}

func (m *memDB) Update(_ context.Context, id int, patch types.BookPatch) (types.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	if patch.Title != nil {
		for oid, other := range m.books {
			if oid != id && other.Title == *patch.Title {
				return types.Book{}, store.ErrConflict
			}
		}
		b.Title = *patch.Title
	}
	if patch.Description != nil {
		b.Description = patch.Description
	}
	if patch.Price != nil {
		b.Price = *patch.Price
	}
	if patch.Stock != nil {
		b.Stock = *patch.Stock
	}
	m.books[id] = b
	return b, nil
}

func (m *memDB) SetCoverKey(_ context.Context, id int, key string) (types.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	b.CoverKey = key
	m.books[id] = b
	return b, nil
}

func (m *memDB) Delete(_ context.Context, id int) (types.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	delete(m.books, id)
	return b, nil
}

func (m *memDB) DecrementStock(_ context.Context, id int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	if b.Stock < 1 {
		return 0, store.ErrOutOfStock
	}
	b.Stock--
	m.books[id] = b
	return b.Stock, nil
}

func (m *memDB) IncrementStock(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Stock++
	m.books[id] = b
	return nil
}

func (m *memDB) seedBook(title string, stock int) types.Book {
	b, err := m.createBook(context.Background(), types.Book{Title: title, Price: 10, Stock: stock})
	if err != nil {
		panic(err)
	}
	return b
}

func (m *memDB) stock(id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[id].Stock
}

// Purchases

func (m *memDB) insertPurchase(_ context.Context, p types.Purchase) (types.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failPurchaseInsert; err != nil {
		m.failPurchaseInsert = nil
		return types.Purchase{}, err
	}
	p.ID = m.id()
	m.purchases[p.ID] = p
	return p, nil
}

func (m *memDB) ListByUser(_ context.Context, userID int) ([]types.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Purchase, 0)
	for _, p := range m.purchases {
		if p.UserID == userID {
			out = append(out, m.decorate(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memDB) GetForUser(_ context.Context, id, userID int) (types.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok || p.UserID != userID {
		return types.Purchase{}, store.ErrNotFound
	}
	return m.decorate(p), nil
}

func (m *memDB) DeleteForUser(_ context.Context, id, userID int) (types.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok || p.UserID != userID {
		return types.Purchase{}, store.ErrNotFound
	}
	delete(m.purchases, id)
	return p, nil
}

func (m *memDB) decorate(p types.Purchase) types.Purchase {
	if u, ok := m.users[p.UserID]; ok {
		p.User = &types.UserRef{ID: u.ID, Name: u.Name}
	}
	if b, ok := m.books[p.BookID]; ok {
		p.Book = &types.BookRef{ID: b.ID, Title: b.Title}
	}
	return p
}

func (m *memDB) purchaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.purchases)
}

// snapshot and restore emulate rollback.
func (m *memDB) snapshot() (map[int]types.Book, map[int]types.Purchase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	books := make(map[int]types.Book, len(m.books))
	for k, v := range m.books {
		books[k] = v
	}
	purchases := make(map[int]types.Purchase, len(m.purchases))
	for k, v := range m.purchases {
		purchases[k] = v
	}
	return books, purchases
}

func (m *memDB) restore(books map[int]types.Book, purchases map[int]types.Purchase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books = books
	m.purchases = purchases
}

// Adapters exposing memDB under each repository interface.

type memUsers struct{ *memDB }

func (u memUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	return u.createUser(ctx, user)
}

type memBooks struct{ *memDB }

func (b memBooks) Create(ctx context.Context, book types.Book) (types.Book, error) {
	return b.createBook(ctx, book)
}

type memLedger struct{ *memDB }

func (l memLedger) Create(ctx context.Context, p types.Purchase) (types.Purchase, error) {
	return l.insertPurchase(ctx, p)
}

// memTx serializes transactions and restores the pre-transaction state when
// fn fails.
type memTx struct {
	mu sync.Mutex
	db *memDB
}

func (t *memTx) InTx(ctx context.Context, fn func(ctx context.Context, repos TxRepos) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	books, purchases := t.db.snapshot()
	if err := fn(ctx, TxRepos{Books: memBooks{t.db}, Purchases: memLedger{t.db}}); err != nil {
		t.db.restore(books, purchases)
		return err
	}
	return nil
}

type recordedEvents struct {
	mu     sync.Mutex
	events []PurchaseEvent

	// ctxErrs and deadlines capture each publish context as it was at
	// call time.
	ctxErrs   []error
	deadlines []time.Time
	err       error
}

func (r *recordedEvents) PublishPurchase(ctx context.Context, evt PurchaseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	deadline, _ := ctx.Deadline()
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	r.deadlines = append(r.deadlines, deadline)
	return r.err
}

// memCovers is an in-memory object store.
type memCovers struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemCovers() *memCovers {
	return &memCovers{objects: map[string][]byte{}}
}

func (c *memCovers) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if c.putErr != nil {
		return c.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = data
	return nil
}

func (c *memCovers) Get(_ context.Context, key string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *memCovers) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, key)
	return nil
}

func (c *memCovers) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.objects))
	for k := range c.objects {
		keys = append(keys, k)
	}
	return keys
}
