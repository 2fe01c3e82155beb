package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
	"github.com/phrazzld/adscript-api/internal/service/auth"
	"github.com/phrazzld/adscript-api/internal/store"
)

// UserService provides account registration and credential checks.
type UserService interface {
	// Register creates a new user with the specified email and password.
	// Returns store.ErrEmailExists if the email is taken.
	Register(ctx context.Context, email, password string) (*domain.User, error)

	// Authenticate returns the user owning email when password matches.
	// Returns ErrInvalidCredentials otherwise.
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)

	// GetUser retrieves a user by their ID
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// userServiceImpl implements the UserService interface
type userServiceImpl struct {
	users    store.UserStore
	verifier auth.PasswordVerifier
	logger   *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(users store.UserStore, verifier auth.PasswordVerifier, logger *slog.Logger) UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &userServiceImpl{
		users:    users,
		verifier: verifier,
		logger:   logger.With("component", "user_service"),
	}
}

// Register implements UserService.Register
func (s *userServiceImpl) Register(ctx context.Context, email, password string) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := domain.NewUser(email, password)
	if err != nil {
		log.Debug("registration rejected", "error", err)
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			log.Debug("attempted to register an existing email")
			return nil, err
		}
		log.Error("failed to save user", "error", err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate implements UserService.Authenticate
func (s *userServiceImpl) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Debug("login for unknown email")
			return nil, ErrInvalidCredentials
		}
		log.Error("failed to look up user by email", "error", err)
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		log.Debug("login with wrong password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// GetUser implements UserService.GetUser
func (s *userServiceImpl) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to retrieve user",
				"error", err,
				"user_id", userID)
		}
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return user, nil
}
