package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/store"
)

// LastLoginInterval is the minimum time between two last_login writes for
// the same user.
const LastLoginInterval = time.Minute

// UserService provides user-related operations
type UserService interface {
	// CreateUser registers a new user. Returns store.ErrEmailExists when the
	// email is taken and a domain validation error for bad input.
	CreateUser(ctx context.Context, email, password string) (*domain.User, error)

	// GetUser retrieves a user by their ID
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// GetUserByEmail retrieves a user by their email address
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetFirstUser returns the earliest registered user, or ErrNoUsers.
	GetFirstUser(ctx context.Context) (*domain.User, error)

	// UpdateProfile replaces the non-nil profile sections and bumps the version.
	UpdateProfile(
		ctx context.Context,
		userID uuid.UUID,
		demographics, settings map[string]any,
	) (*domain.User, error)

	// RecordActivity updates last_login unless it was written within
	// LastLoginInterval.
	RecordActivity(ctx context.Context, user *domain.User) error
}

// userServiceImpl implements the UserService interface
type userServiceImpl struct {
	userStore store.UserStore
	tx        store.Transactor
	now       func() time.Time
	logger    *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(userStore store.UserStore, tx store.Transactor, logger *slog.Logger) (UserService, error) {
	if userStore == nil {
		return nil, nilDependency("user", "userStore")
	}
	if tx == nil {
		return nil, nilDependency("user", "transactor")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &userServiceImpl{
		userStore: userStore,
		tx:        tx,
		now:       time.Now,
		logger:    logger.With("component", "user_service"),
	}, nil
}

// CreateUser creates a new user with the specified email and password
func (s *userServiceImpl) CreateUser(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := domain.NewUser(email, password)
	if err != nil {
		s.logger.Debug("rejected registration", "error", err)
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return s.userStore.WithTx(tx).Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			s.logger.Debug("attempted to create user with existing email", "email", user.Email)
			return nil, store.ErrEmailExists
		}
		s.logger.Error("failed to save user to database",
			"error", err,
			"email", user.Email)
		return nil, NewServiceError("user", "create_user", "failed to create user", err)
	}

	s.logger.Info("user created successfully", "user_id", user.ID)
	return user, nil
}

// GetUser retrieves a user by their ID
func (s *userServiceImpl) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		if !store.IsNotFoundError(err) {
			s.logger.Error("failed to retrieve user", "error", err, "user_id", userID)
		}
		return nil, NewServiceError("user", "get_user", "failed to retrieve user", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by their email address
func (s *userServiceImpl) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.userStore.GetByEmail(ctx, email)
	if err != nil {
		if store.IsNotFoundError(err) {
			s.logger.Debug("user not found by email")
		} else {
			s.logger.Error("failed to retrieve user by email", "error", err)
		}
		return nil, NewServiceError("user", "get_user_by_email", "failed to retrieve user by email", err)
	}
	return user, nil
}

// GetFirstUser returns the earliest registered user.
func (s *userServiceImpl) GetFirstUser(ctx context.Context) (*domain.User, error) {
	user, err := s.userStore.GetFirst(ctx)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrNoUsers
		}
		s.logger.Error("failed to retrieve first user", "error", err)
		return nil, NewServiceError("user", "get_first_user", "failed to retrieve first user", err)
	}
	return user, nil
}

// UpdateProfile loads the user, applies the change and writes it back in
// one transaction.
func (s *userServiceImpl) UpdateProfile(
	ctx context.Context,
	userID uuid.UUID,
	demographics, settings map[string]any,
) (*domain.User, error) {
	var updated *domain.User
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.userStore.WithTx(tx)

		user, err := txStore.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		user.UpdateProfile(demographics, settings)
		if err := txStore.Update(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		if !store.IsNotFoundError(err) {
			s.logger.Error("failed to update user profile", "error", err, "user_id", userID)
		}
		return nil, NewServiceError("user", "update_profile", "failed to update profile", err)
	}

	s.logger.Info("user profile updated", "user_id", userID, "version", updated.Version)
	return updated, nil
}

// RecordActivity implements UserService.RecordActivity.
func (s *userServiceImpl) RecordActivity(ctx context.Context, user *domain.User) error {
	now := s.now().UTC()
	if user.LastLogin != nil && now.Sub(*user.LastLogin) < LastLoginInterval {
		return nil
	}
	if err := s.userStore.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", "error", err, "user_id", user.ID)
		return NewServiceError("user", "record_activity", "failed to update last login", err)
	}
	user.LastLogin = &now
	return nil
}
