package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/bookstore/apiserver/internal/auth"
	"github.com/bookstore/apiserver/internal/store"
	"github.com/bookstore/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetRole(ctx context.Context, email string, role types.Role) (types.User, error)
}

// TokenIssuer mints bearer tokens for authenticated users.
type TokenIssuer interface {
	Issue(user types.User) (string, error)
}

// RegisterInput is the payload accepted by public registration. Role is
// accepted only so that a non-standard value can be rejected.
type RegisterInput struct {
	Name     string      `json:"name" validate:"required,max=100"`
	Email    string      `json:"email" validate:"required,email,max=254"`
	Password string      `json:"password" validate:"required,min=8,max=72"`
	Role     *types.Role `json:"role,omitempty"`
}

// maxPasswordBytes is bcrypt's input limit. The validate tag counts
// characters, so multibyte passwords are checked separately.
const maxPasswordBytes = 72

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo     UserRepository
	tokens   TokenIssuer
	hashCost int
	// dummyHash is compared against when the email is unknown so that both
	// login failure paths cost one bcrypt comparison.
	dummyHash []byte
}

func NewUserService(repo UserRepository, tokens TokenIssuer) *UserService {
	return newUserService(repo, tokens, bcrypt.DefaultCost)
}

func newUserService(repo UserRepository, tokens TokenIssuer, cost int) *UserService {
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		panic(fmt.Sprintf("services: generate dummy hash: %v", err))
	}
	return &UserService{repo: repo, tokens: tokens, hashCost: cost, dummyHash: dummy}
}

// Register creates a standard user and returns it with a fresh token.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := validatePassword(in); err != nil {
		return types.User{}, "", err
	}
	if in.Role != nil && *in.Role != types.RoleStandard {
		return types.User{}, "", NewValidationError("role cannot be set at registration")
	}

	user, err := s.createUser(ctx, in.Name, in.Email, in.Password, types.RoleStandard)
	if err != nil {
		return types.User{}, "", err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return types.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials. Unknown email and wrong password both yield
// ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, in LoginInput) (types.User, string, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return types.User{}, "", err
	}

	user, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
			return types.User{}, "", ErrInvalidCredentials
		}
		return types.User{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return types.User{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return types.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// RequireAdmin re-reads the user and fails with ErrForbidden unless the
// stored role is admin. A token for a user that no longer exists is
// treated as unauthenticated.
func (s *UserService) RequireAdmin(ctx context.Context, userID int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, auth.ErrUnauthorized
		}
		return types.User{}, err
	}
	if !user.IsAdmin() {
		return types.User{}, ErrForbidden
	}
	return user, nil
}

// ProvisionAdmin creates a user with the admin role. It is reachable only
// from the operator CLI.
func (s *UserService) ProvisionAdmin(ctx context.Context, name, email, password string) (types.User, error) {
	in := RegisterInput{Name: strings.TrimSpace(name), Email: normalizeEmail(email), Password: password}
	if err := validatePassword(in); err != nil {
		return types.User{}, err
	}
	return s.createUser(ctx, in.Name, in.Email, in.Password, types.RoleAdmin)
}

// SetRole changes the role of the user with the given email.
func (s *UserService) SetRole(ctx context.Context, email string, role types.Role) (types.User, error) {
	if !role.Valid() {
		return types.User{}, NewValidationError(fmt.Sprintf("unknown role %d", role))
	}
	return s.repo.SetRole(ctx, normalizeEmail(email), role)
}

func (s *UserService) createUser(ctx context.Context, name, email, password string, role types.Role) (types.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.repo.Create(ctx, types.User{
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
	})
}

func validatePassword(in RegisterInput) error {
	if err := validateStruct(in); err != nil {
		return err
	}
	if len(in.Password) > maxPasswordBytes {
		return NewValidationError(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
