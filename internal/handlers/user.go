package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookstore/apiserver/internal/auth"
	"github.com/bookstore/apiserver/internal/services"
	"github.com/bookstore/apiserver/internal/store"
	"github.com/bookstore/apiserver/types"
)

// UserService is the account behaviour the user routes need.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (types.User, string, error)
	Login(ctx context.Context, in services.LoginInput) (types.User, string, error)
	GetByID(ctx context.Context, id int) (types.User, error)
}

// UserHandler serves registration, login and the current-user endpoint.
type UserHandler struct {
	users UserService
}

func NewUserHandler(users UserService) *UserHandler {
	return &UserHandler{users: users}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, users UserService, authMiddleware func(http.Handler) http.Handler) {
	h := NewUserHandler(users)

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.With(authMiddleware).Get("/me", h.Me)
}

// Register creates a standard account and returns a token.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrors(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	_, token, err := h.users.Register(r.Context(), req)
	if err != nil {
		if ve, ok := services.IsValidationError(err); ok {
			writeErrors(w, http.StatusBadRequest, ve.Messages...)
			return
		}
		if errors.Is(err, store.ErrConflict) {
			writeErrors(w, http.StatusBadRequest, "User already exists")
			return
		}
		writeServerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, TokenResponse{Token: token})
}

// Login exchanges credentials for a token.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrors(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	_, token, err := h.users.Login(r.Context(), req)
	if err != nil {
		if ve, ok := services.IsValidationError(err); ok {
			writeErrors(w, http.StatusBadRequest, ve.Messages...)
			return
		}
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeErrors(w, http.StatusBadRequest, "Invalid credentials")
			return
		}
		writeServerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// Me returns the authenticated user.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		writeServerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// writeAuthzError handles the failures shared by admin-only routes. It
// reports whether it wrote a response.
func writeAuthzError(w http.ResponseWriter, err error, forbidden string) bool {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, services.ErrForbidden):
		writeErrors(w, http.StatusForbidden, forbidden)
	default:
		return false
	}
	return true
}
