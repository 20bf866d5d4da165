package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/bookstore/apiserver/types"
)

const maxJSONBody = 1 << 20

// Response messages shared by several handlers.
const (
	msgServerError    = "Server error"
	msgUnauthorized   = "unauthorized"
	msgInvalidRequest = "Invalid request body"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller as asserted by the bearer token.
// Role is informational; authorization decisions re-read the user.
type Identity struct {
	UserID int
	Role   types.Role
}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller attached by RequireAuth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.UserID < 1 {
		return Identity{}, false
	}
	return id, true
}

// MessageResponse is the single-message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorsResponse is the list payload used for validation and conflicts.
type ErrorsResponse struct {
	Errors []MessageResponse `json:"errors"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

func writeErrors(w http.ResponseWriter, status int, messages ...string) {
	resp := ErrorsResponse{Errors: make([]MessageResponse, 0, len(messages))}
	for _, m := range messages {
		resp.Errors = append(resp.Errors, MessageResponse{Message: m})
	}
	writeJSON(w, status, resp)
}

// writeServerError logs err with the request's logger and hides it from the
// client.
func writeServerError(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Error().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")
	writeMessage(w, http.StatusInternalServerError, msgServerError)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

func parseID(r *http.Request, param string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, param))
	if err != nil || id < 1 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// NotFound answers unmatched routes.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusNotFound, "Route not found")
}

// MethodNotAllowed answers known paths requested with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
}
