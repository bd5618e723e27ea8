package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/Tirtha134/NoteApp-backend/internal/config"
	"github.com/Tirtha134/NoteApp-backend/internal/crypto"
	"github.com/Tirtha134/NoteApp-backend/internal/domain"
	"github.com/Tirtha134/NoteApp-backend/internal/repository"
	"github.com/Tirtha134/NoteApp-backend/internal/token"
)

const minPasswordLength = 6

var (
	// ErrMissingFields is returned when a required field is empty after trimming.
	ErrMissingFields = errors.New("all fields are required")
	// ErrUserExists is returned when the email or phone is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials covers both an unknown identifier and a wrong
	// password so responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when an identifier resolves to no account.
	ErrUserNotFound = errors.New("user not found")
	// ErrPasswordTooShort rejects passwords below the minimum length.
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
)

// Service handles registration, login and credential workflows.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.Config
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.Config) Service {
	return Service{users: users, logger: logger, cfg: cfg}
}

// Register creates an account with a hashed password. Uniqueness of email
// and phone is pre-checked for a friendly error, but the store's unique
// constraints are authoritative: the pre-check and the insert are not
// atomic, so a concurrent duplicate resolves at the constraint.
func (s Service) Register(ctx context.Context, name, phone, email, password string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	email = strings.TrimSpace(email)
	if name == "" || phone == "" || email == "" || password == "" {
		return nil, ErrMissingFields
	}

	if _, err := s.users.GetUserByIdentifier(ctx, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if _, err := s.users.GetUserByIdentifier(ctx, phone); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login authenticates by email or phone and returns the user with a
// freshly issued session token.
func (s Service) Login(ctx context.Context, identifier, password string) (*domain.User, string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, "", ErrMissingFields
	}

	user, err := s.users.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	signed, err := token.Issue(user.ID, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, signed, nil
}

// Authorize verifies a session token and resolves the account it names.
func (s Service) Authorize(ctx context.Context, signed string) (*domain.User, error) {
	claims, err := token.Parse(signed, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetUser resolves an account by id.
func (s Service) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ResetPassword rehashes and persists a new password for the account the
// identifier names. The caller proves nothing beyond knowing the email or
// phone; see DESIGN.md for why this contract is kept as is.
func (s Service) ResetPassword(ctx context.Context, identifier, newPassword string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || newPassword == "" {
		return ErrMissingFields
	}
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}

	user, err := s.users.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}
	s.logger.Info("password reset", "user_id", user.ID)
	return nil
}
