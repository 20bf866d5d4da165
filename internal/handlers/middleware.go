package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bookstore/apiserver/internal/auth"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// RequireAuth rejects requests without a valid bearer token and attaches the
// caller's Identity to the request context. Every failure produces the same
// 401 response.
func RequireAuth(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			ctx := withIdentity(r.Context(), Identity{UserID: claims.UserID, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

// callerID returns the authenticated user id. Routes using it must be
// wrapped by RequireAuth.
func callerID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
		return 0, false
	}
	return id.UserID, true
}
