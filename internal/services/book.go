package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bookstore/apiserver/types"
)

// BookRepository defines persistence operations for the catalog.
type BookRepository interface {
	ListInStock(ctx context.Context) ([]types.Book, error)
	Get(ctx context.Context, id int) (types.Book, error)
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, id int, patch types.BookPatch) (types.Book, error)
	SetCoverKey(ctx context.Context, id int, key string) (types.Book, error)
	Delete(ctx context.Context, id int) (types.Book, error)
}

// AdminChecker confirms that a caller currently holds the admin role.
type AdminChecker interface {
	RequireAdmin(ctx context.Context, userID int) (types.User, error)
}

// CoverStorage stores cover images in an object store.
type CoverStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MaxCoverSize bounds accepted cover uploads.
const MaxCoverSize = 5 << 20

var coverExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type CreateBookInput struct {
	Title       string   `json:"title" validate:"required,min=2,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Price       *float64 `json:"price" validate:"required,gte=0,lte=9999999999.99"`
	Stock       *int     `json:"stock" validate:"omitempty,gte=0,lte=2147483647"`
}

// UpdateBookInput carries a partial update. Absent fields are unchanged.
type UpdateBookInput struct {
	Title       *string  `json:"title" validate:"omitempty,min=2,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0,lte=9999999999.99"`
	Stock       *int     `json:"stock" validate:"omitempty,gte=0,lte=2147483647"`
}

// BookService encapsulates catalog use-cases. Mutations require the caller
// to be an admin at the time of the request.
type BookService struct {
	repo   BookRepository
	admins AdminChecker
	covers CoverStorage
}

// NewBookService constructs a BookService. covers may be nil, in which case
// cover operations return ErrStorageDisabled.
func NewBookService(repo BookRepository, admins AdminChecker, covers CoverStorage) *BookService {
	return &BookService{repo: repo, admins: admins, covers: covers}
}

// List returns books with at least one unit in stock.
func (s *BookService) List(ctx context.Context) ([]types.Book, error) {
	return s.repo.ListInStock(ctx)
}

func (s *BookService) Get(ctx context.Context, id int) (types.Book, error) {
	return s.repo.Get(ctx, id)
}

func (s *BookService) Create(ctx context.Context, callerID int, in CreateBookInput) (types.Book, error) {
	if _, err := s.admins.RequireAdmin(ctx, callerID); err != nil {
		return types.Book{}, err
	}

	in.Title = strings.TrimSpace(in.Title)
	if err := validateStruct(in); err != nil {
		return types.Book{}, err
	}

	book := types.Book{
		Title:       in.Title,
		Description: in.Description,
		Price:       *in.Price,
	}
	if in.Stock != nil {
		book.Stock = *in.Stock
	}
	return s.repo.Create(ctx, book)
}

func (s *BookService) Update(ctx context.Context, callerID, id int, in UpdateBookInput) (types.Book, error) {
	if _, err := s.admins.RequireAdmin(ctx, callerID); err != nil {
		return types.Book{}, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		in.Title = &title
	}
	if err := validateStruct(in); err != nil {
		return types.Book{}, err
	}

	patch := types.BookPatch{
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
	}
	if patch.Empty() {
		return types.Book{}, NewValidationError("at least one field must be provided")
	}
	return s.repo.Update(ctx, id, patch)
}

// Delete removes a book. Existing purchases keep their book id. The cover
// object, if any, is removed after the row.
func (s *BookService) Delete(ctx context.Context, callerID, id int) (types.Book, error) {
	if _, err := s.admins.RequireAdmin(ctx, callerID); err != nil {
		return types.Book{}, err
	}

	book, err := s.repo.Delete(ctx, id)
	if err != nil {
		return types.Book{}, err
	}

	if book.CoverKey != "" && s.covers != nil {
		if err := s.covers.Delete(ctx, book.CoverKey); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Int("book_id", book.ID).
				Str("key", book.CoverKey).
				Msg("failed to remove cover of deleted book")
		}
	}
	return book, nil
}

// UploadCover stores a new cover image and points the book at it. The
// previous cover object is removed once the book is updated.
func (s *BookService) UploadCover(ctx context.Context, callerID, id int, r io.Reader, size int64, contentType string) (types.Book, error) {
	if _, err := s.admins.RequireAdmin(ctx, callerID); err != nil {
		return types.Book{}, err
	}
	if s.covers == nil {
		return types.Book{}, ErrStorageDisabled
	}

	ext, ok := coverExtensions[contentType]
	if !ok {
		return types.Book{}, NewValidationError("cover must be a jpeg, png or webp image")
	}
	if size <= 0 || size > MaxCoverSize {
		return types.Book{}, NewValidationError(fmt.Sprintf("cover must be between 1 and %d bytes", MaxCoverSize))
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Book{}, err
	}

	key := coverKey(id, ext)
	if err := s.covers.Put(ctx, key, r, size, contentType); err != nil {
		return types.Book{}, fmt.Errorf("upload cover: %w", err)
	}

	book, err := s.repo.SetCoverKey(ctx, id, key)
	if err != nil {
		if delErr := s.covers.Delete(ctx, key); delErr != nil {
			zerolog.Ctx(ctx).Warn().Err(delErr).Str("key", key).Msg("failed to remove orphaned cover")
		}
		return types.Book{}, err
	}

	if current.CoverKey != "" {
		if err := s.covers.Delete(ctx, current.CoverKey); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", current.CoverKey).Msg("failed to remove replaced cover")
		}
	}
	return book, nil
}

// OpenCover returns a reader for the book's cover and its content type.
// The caller must close the reader.
func (s *BookService) OpenCover(ctx context.Context, id int) (io.ReadCloser, string, error) {
	if s.covers == nil {
		return nil, "", ErrStorageDisabled
	}

	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if book.CoverKey == "" {
		return nil, "", ErrNoCover
	}

	rc, err := s.covers.Get(ctx, book.CoverKey)
	if err != nil {
		return nil, "", fmt.Errorf("open cover: %w", err)
	}
	return rc, coverContentType(book.CoverKey), nil
}

func coverKey(bookID int, ext string) string {
	return fmt.Sprintf("books/%d/cover-%s%s", bookID, uuid.NewString(), ext)
}

func coverContentType(key string) string {
	ext := path.Ext(key)
	for contentType, e := range coverExtensions {
		if e == ext {
			return contentType
		}
	}
	return "application/octet-stream"
}
