// Package auth issues and verifies the signed session tokens that carry a
// user's identity and role between requests.
package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bookstore/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL bounds the validity window of issued tokens.
const DefaultTokenTTL = time.Hour

// ErrUnauthorized is the only error Verify returns. Callers cannot tell an
// expired token from a forged one.
var ErrUnauthorized = errors.New("unauthorized")

// Claims is the identity proven by a valid token.
type Claims struct {
	UserID    int
	Role      types.Role
	ExpiresAt time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Role types.Role `json:"role"`
}

// TokenService signs and verifies HS256 session tokens with a process-wide
// secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue returns a signed token for the user's current id and role.
func (s *TokenService) Issue(user types.User) (string, error) {
	if user.ID < 1 {
		return "", errors.New("auth: cannot issue token without user id")
	}

	now := s.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Role: user.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature, algorithm and expiry and decodes the claims.
func (s *TokenService) Verify(tokenString string) (Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrUnauthorized
	}

	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return Claims{}, ErrUnauthorized
	}

	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return Claims{}, ErrUnauthorized
	}
	if !claims.Role.Valid() {
		return Claims{}, ErrUnauthorized
	}

	return Claims{
		UserID:    userID,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
