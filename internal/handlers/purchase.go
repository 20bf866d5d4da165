package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookstore/apiserver/internal/store"
	"github.com/bookstore/apiserver/types"
)

const msgPurchaseNotFound = "Purchase not found"

// PurchaseService is the ordering behaviour the purchase routes need.
type PurchaseService interface {
	Create(ctx context.Context, userID, bookID int) (types.Purchase, error)
	Cancel(ctx context.Context, userID, purchaseID int) (types.Purchase, error)
	List(ctx context.Context, userID int) ([]types.Purchase, error)
	Get(ctx context.Context, userID, purchaseID int) (types.Purchase, error)
}

// PurchaseHandler serves the caller's purchases.
type PurchaseHandler struct {
	purchases PurchaseService
}

func NewPurchaseHandler(purchases PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases}
}

// PurchaseRouter registers purchase routes. All of them require
// authentication.
func PurchaseRouter(r chi.Router, purchases PurchaseService, authMiddleware func(http.Handler) http.Handler) {
	h := NewPurchaseHandler(purchases)

	r.Use(authMiddleware)
	r.Get("/", h.ListPurchases)
	r.Post("/", h.CreatePurchase)
	r.Get("/{purchaseID}", h.GetPurchase)
	r.Delete("/{purchaseID}", h.CancelPurchase)
}

type CreatePurchaseRequest struct {
	BookID int `json:"bookId"`
}

func (h *PurchaseHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	purchases, err := h.purchases.List(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "No purchases found for this user")
			return
		}
		writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchases)
}

func (h *PurchaseHandler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := parseID(r, "purchaseID")
	if err != nil {
		writeMessage(w, http.StatusNotFound, msgPurchaseNotFound)
		return
	}

	purchase, err := h.purchases.Get(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, msgPurchaseNotFound)
			return
		}
		writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (h *PurchaseHandler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req CreatePurchaseRequest
	if err := decodeJSON(w, r, &req); err != nil || req.BookID < 1 {
		writeErrors(w, http.StatusBadRequest, "Invalid book ID")
		return
	}

	purchase, err := h.purchases.Create(r.Context(), userID, req.BookID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeMessage(w, http.StatusNotFound, "Book not found")
		case errors.Is(err, store.ErrOutOfStock):
			writeMessage(w, http.StatusBadRequest, "Book out of stock")
		default:
			writeServerError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, purchase)
}

func (h *PurchaseHandler) CancelPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := parseID(r, "purchaseID")
	if err != nil {
		writeMessage(w, http.StatusNotFound, msgPurchaseNotFound)
		return
	}

	if _, err := h.purchases.Cancel(r.Context(), userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, msgPurchaseNotFound)
			return
		}
		writeServerError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Purchase successfully canceled")
}
