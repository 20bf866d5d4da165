package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/bookstore/apiserver/internal/services"
	"github.com/bookstore/apiserver/internal/storage"
	"github.com/bookstore/apiserver/internal/store"
	"github.com/bookstore/apiserver/types"
)

const msgBookNotFound = "Could not find a book by this id"

// BookService is the catalog behaviour the book routes need.
type BookService interface {
	List(ctx context.Context) ([]types.Book, error)
	Get(ctx context.Context, id int) (types.Book, error)
	Create(ctx context.Context, callerID int, in services.CreateBookInput) (types.Book, error)
	Update(ctx context.Context, callerID, id int, in services.UpdateBookInput) (types.Book, error)
	Delete(ctx context.Context, callerID, id int) (types.Book, error)
	UploadCover(ctx context.Context, callerID, id int, r io.Reader, size int64, contentType string) (types.Book, error)
	OpenCover(ctx context.Context, id int) (io.ReadCloser, string, error)
}

// BookHandler provides HTTP handlers for the catalog.
type BookHandler struct {
	books BookService
}

func NewBookHandler(books BookService) *BookHandler {
	return &BookHandler{books: books}
}

// BookRouter registers book routes on the given router. Reads are public;
// writes require authentication and the admin role.
func BookRouter(r chi.Router, books BookService, authMiddleware func(http.Handler) http.Handler) {
	h := NewBookHandler(books)

	r.Get("/", h.ListBooks)
	r.With(authMiddleware).Post("/", h.CreateBook)
	r.Route("/{bookID}", func(r chi.Router) {
		r.Get("/", h.GetBook)
		r.With(authMiddleware).Patch("/", h.UpdateBook)
		r.With(authMiddleware).Delete("/", h.DeleteBook)
		r.Get("/cover", h.GetCover)
		r.With(authMiddleware).Put("/cover", h.PutCover)
	})
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.List(r.Context())
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "bookID")
	if err != nil {
		writeErrors(w, http.StatusBadRequest, msgBookNotFound)
		return
	}

	book, err := h.books.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrors(w, http.StatusBadRequest, msgBookNotFound)
			return
		}
		writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req services.CreateBookInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrors(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	book, err := h.books.Create(r.Context(), userID, req)
	if err != nil {
		h.writeBookError(w, r, err, "Only admin can add books")
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := parseID(r, "bookID")
	if err != nil {
		writeErrors(w, http.StatusBadRequest, msgBookNotFound)
		return
	}

	var req services.UpdateBookInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrors(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	book, err := h.books.Update(r.Context(), userID, id, req)
	if err != nil {
		h.writeBookError(w, r, err, "Only admin can update books")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := parseID(r, "bookID")
	if err != nil {
		writeErrors(w, http.StatusBadRequest, msgBookNotFound)
		return
	}

	if _, err := h.books.Delete(r.Context(), userID, id); err != nil {
		h.writeBookError(w, r, err, "Only admin can delete books")
		return
	}
	writeMessage(w, http.StatusOK, "Successfully deleted the book")
}

// PutCover replaces the book's cover with the raw request body.
func (h *BookHandler) PutCover(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := parseID(r, "bookID")
	if err != nil {
		writeErrors(w, http.StatusBadRequest, msgBookNotFound)
		return
	}
	if r.ContentLength < 0 {
		writeErrors(w, http.StatusBadRequest, "Content-Length is required")
		return
	}

	body := http.MaxBytesReader(w, r.Body, services.MaxCoverSize)
	book, err := h.books.UploadCover(r.Context(), userID, id, body, r.ContentLength, r.Header.Get("Content-Type"))
	if err != nil {
		h.writeBookError(w, r, err, "Only admin can upload covers")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// GetCover streams the book's cover image.
func (h *BookHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "bookID")
	if err != nil {
		writeMessage(w, http.StatusNotFound, "Cover not found")
		return
	}

	rc, contentType, err := h.books.OpenCover(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrStorageDisabled):
			writeMessage(w, http.StatusServiceUnavailable, "Cover storage is not configured")
		case errors.Is(err, store.ErrNotFound),
			errors.Is(err, services.ErrNoCover),
			errors.Is(err, storage.ErrObjectNotFound):
			writeMessage(w, http.StatusNotFound, "Cover not found")
		default:
			writeServerError(w, r, err)
		}
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Int("book_id", id).Msg("cover stream interrupted")
	}
}

func (h *BookHandler) writeBookError(w http.ResponseWriter, r *http.Request, err error, forbidden string) {
	if writeAuthzError(w, err, forbidden) {
		return
	}
	if ve, ok := services.IsValidationError(err); ok {
		writeErrors(w, http.StatusBadRequest, ve.Messages...)
		return
	}

	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErrors(w, http.StatusBadRequest, msgBookNotFound)
	case errors.Is(err, store.ErrConflict):
		writeErrors(w, http.StatusBadRequest, "Book already exists")
	case errors.Is(err, services.ErrStorageDisabled):
		writeMessage(w, http.StatusServiceUnavailable, "Cover storage is not configured")
	case errors.As(err, &maxBytes):
		writeErrors(w, http.StatusRequestEntityTooLarge, "Cover is too large")
	default:
		writeServerError(w, r, err)
	}
}
