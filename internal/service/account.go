// Package service contains the business logic layer of the application.
//
//	Handler (HTTP / WebSocket) → Service (rules) → Repository (SQLite)
//
// Services accept and return plain Go values and domain errors from
// internal/apperror; they know nothing about HTTP. Each one depends on a
// repository interface, so the tests drive them with in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/roomchat/internal/apperror"
	"github.com/sakif/roomchat/internal/auth"
	"github.com/sakif/roomchat/internal/model"
	"github.com/sakif/roomchat/internal/repository"
)

// Validation limits for account fields.
const (
	MaxNameLength  = 100
	MaxEmailLength = 254
	MaxAboutLength = 2000
)

// AccountService registers, authenticates and updates users.
type AccountService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAccountService creates an AccountService with all required dependencies.
func NewAccountService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// Register creates an account and returns the stored user.
//
// The password is hashed before it reaches the repository. An email that
// already has an account yields apperror.DuplicateEmail.
func (s *AccountService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	switch {
	case name == "":
		return nil, apperror.ValidationFailed("name", "Name is required.")
	case len(name) > MaxNameLength:
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("Name must be %d characters or less.", MaxNameLength))
	case email == "":
		return nil, apperror.ValidationFailed("email", "Email is required.")
	case len(email) > MaxEmailLength:
		return nil, apperror.ValidationFailed("email",
			fmt.Sprintf("Email must be %d characters or less.", MaxEmailLength))
	case password == "":
		return nil, apperror.ValidationFailed("password", "Password is required.")
	case len(password) > auth.MaxPasswordBytes:
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be %d bytes or fewer.", auth.MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/account: hashing password: %w", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Avatar:       model.DefaultAvatar,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create user", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/account: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.Int64("userID", user.ID))
	return user, nil
}

// Authenticate returns the user whose email and password match.
//
// An unknown email and a wrong password both return the same
// apperror.InvalidCredentials value. For an unknown email a dummy bcrypt
// comparison still runs so timing does not reveal which case occurred.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.TrimSpace(email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.VerifyDummy(password)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/account: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("stored password hash unusable",
				slog.Int64("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.InvalidCredentials()
	}

	return user, nil
}

// Get returns the user with the given id, or apperror.ErrNotFound.
func (s *AccountService) Get(ctx context.Context, id int64) (*model.User, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile overwrites the user's bio and avatar reference.
func (s *AccountService) UpdateProfile(ctx context.Context, id int64, about, avatar string) error {
	if len(about) > MaxAboutLength {
		return apperror.ValidationFailed("about",
			fmt.Sprintf("About must be %d characters or less.", MaxAboutLength))
	}
	if avatar == "" {
		avatar = model.DefaultAvatar
	}

	if err := s.users.UpdateProfile(ctx, id, about, avatar); err != nil {
		s.logger.Error("failed to update profile",
			slog.Int64("userID", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/account: updating profile: %w", err)
	}

	s.logger.Info("profile updated", slog.Int64("userID", id))
	return nil
}
