package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
)

// UserStore defines the interface for user data persistence.
type UserStore interface {
	// Create saves a new user to the store.
	// It handles domain validation and password hashing internally.
	// Returns ErrEmailExists if the email is already taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	// Returns ErrUserNotFound if the user does not exist.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetFirst returns the earliest registered user.
	// Returns ErrUserNotFound when there are no users.
	GetFirst(ctx context.Context) (*domain.User, error)

	// Update writes email, version, demographics and settings.
	// If a plaintext Password is set it is hashed and replaces HashedPassword.
	// Returns ErrUserNotFound if the user does not exist.
	Update(ctx context.Context, user *domain.User) error

	// UpdateLastLogin sets last_login to at.
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// WithTx returns a new UserStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) UserStore
}
