package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tally/internal/core"
)

var (
	ErrEmptyName     = errors.New("name cannot be empty")
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrEmptyPassword = errors.New("password cannot be empty")
)

// UserStore is the slice of the storage layer the credential store needs.
type UserStore interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*core.User, error)
}

// Service verifies and creates credentials. It never hands the password hash
// to callers.
type Service struct {
	store UserStore
	cost  int
}

func NewService(store UserStore, bcryptCost int) *Service {
	return &Service{store: store, cost: bcryptCost}
}

// NormalizeEmail lower-cases and trims an email address. Uniqueness is
// case-insensitive by this normalization.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register hashes the password and inserts the account. A duplicate email
// surfaces as core.ErrDuplicateEmail from the storage-level unique index;
// there is no separate pre-check, so concurrent registrations cannot race.
func (s *Service) Register(ctx context.Context, name, email, password string) (int64, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	switch {
	case name == "":
		return 0, ErrEmptyName
	case email == "" || !strings.Contains(email, "@"):
		return 0, ErrInvalidEmail
	case password == "":
		return 0, ErrEmptyPassword
	}

	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.store.CreateUser(ctx, name, email, hash)
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "User registered", "id", id, "email", email)
	return id, nil
}

// Authenticate looks the account up by email and verifies the password.
// The returned user carries no password hash.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*core.User, error) {
	user, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, core.ErrInvalidCredentials
	}

	slog.InfoContext(ctx, "User authenticated", "id", user.ID, "email", user.Email)
	return &core.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}, nil
}
