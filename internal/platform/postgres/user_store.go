package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
	"github.com/dingsen2/micronutrient-radar/internal/store"
)

const userColumns = `id, email, hashed_password, version, demographics, settings, created_at, updated_at, last_login`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresUserStore implements the store.UserStore interface
// using a PostgreSQL database as the storage backend.
type PostgresUserStore struct {
	db         store.DBTX
	bcryptCost int
	logger     *slog.Logger
}

// NewPostgresUserStore creates a new PostgreSQL implementation of the UserStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresUserStore(db store.DBTX, bcryptCost int, logger *slog.Logger) *PostgresUserStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}

	return &PostgresUserStore{
		db:         db,
		bcryptCost: bcryptCost,
		logger:     logger.With(slog.String("component", "user_store")),
	}
}

// Ensure PostgresUserStore implements store.UserStore interface
var _ store.UserStore = (*PostgresUserStore)(nil)

// WithTx implements store.UserStore.WithTx
func (s *PostgresUserStore) WithTx(tx *sql.Tx) store.UserStore {
	if tx == nil {
		return s
	}
	return &PostgresUserStore{db: tx, bcryptCost: s.bcryptCost, logger: s.logger}
}

// Create implements store.UserStore.Create
// It validates the user, hashes the plaintext password and inserts the row.
// Returns store.ErrEmailExists if the email is already registered.
func (s *PostgresUserStore) Create(ctx context.Context, user *domain.User) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := user.Validate(); err != nil {
		log.Warn("user validation failed during create",
			slog.String("error", err.Error()),
			slog.String("user_id", user.ID.String()))
		return err
	}

	if err := s.hashPassword(user); err != nil {
		return err
	}

	demographics, err := toJSONB(user.Demographics)
	if err != nil {
		return err
	}
	settings, err := toJSONB(user.Settings)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.HashedPassword,
		user.Version,
		demographics,
		settings,
		user.CreatedAt,
		user.UpdatedAt,
		user.LastLogin,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("email already registered", slog.String("user_id", user.ID.String()))
			return store.ErrEmailExists
		}
		log.Error("failed to create user",
			slog.String("error", err.Error()),
			slog.String("user_id", user.ID.String()))
		return MapError(err)
	}

	log.Info("user created successfully", slog.String("user_id", user.ID.String()))
	return nil
}

// GetByID implements store.UserStore.GetByID
func (s *PostgresUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.getOne(ctx, "id", id.String(), query, id)
}

// GetByEmail implements store.UserStore.GetByEmail
// The lookup is case-insensitive.
func (s *PostgresUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.getOne(ctx, "email", "", query, domain.NormalizeEmail(email))
}

// GetFirst implements store.UserStore.GetFirst
func (s *PostgresUserStore) GetFirst(ctx context.Context) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC, id ASC LIMIT 1`
	return s.getOne(ctx, "first", "", query)
}

func (s *PostgresUserStore) getOne(ctx context.Context, by, id, query string, args ...any) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		mapped := mapNotFound(err, store.ErrUserNotFound)
		if store.IsNotFoundError(mapped) {
			log.Debug("user not found", slog.String("by", by), slog.String("user_id", id))
		} else {
			log.Error("failed to get user",
				slog.String("by", by),
				slog.String("error", err.Error()))
		}
		return nil, mapped
	}
	return user, nil
}

// Update implements store.UserStore.Update
func (s *PostgresUserStore) Update(ctx context.Context, user *domain.User) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := user.Validate(); err != nil {
		return err
	}
	if err := s.hashPassword(user); err != nil {
		return err
	}

	demographics, err := toJSONB(user.Demographics)
	if err != nil {
		return err
	}
	settings, err := toJSONB(user.Settings)
	if err != nil {
		return err
	}

	query := `
		UPDATE users
		SET email = $1, hashed_password = $2, version = $3,
			demographics = $4, settings = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := s.db.ExecContext(ctx, query,
		user.Email,
		user.HashedPassword,
		user.Version,
		demographics,
		settings,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrEmailExists
		}
		log.Error("failed to update user",
			slog.String("error", err.Error()),
			slog.String("user_id", user.ID.String()))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrUserNotFound); err != nil {
		return err
	}

	log.Debug("user updated", slog.String("user_id", user.ID.String()), slog.Int("version", user.Version))
	return nil
}

// UpdateLastLogin implements store.UserStore.UpdateLastLogin
func (s *PostgresUserStore) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrUserNotFound)
}

// hashPassword replaces HashedPassword when a plaintext password is set and
// clears the plaintext.
func (s *PostgresUserStore) hashPassword(user *domain.User) error {
	if user.Password == "" {
		return nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.HashedPassword = string(hashed)
	user.Password = ""
	return nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user         domain.User
		demographics []byte
		settings     []byte
		lastLogin    sql.NullTime
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.HashedPassword,
		&user.Version,
		&demographics,
		&settings,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
	); err != nil {
		return nil, err
	}

	user.Demographics = map[string]any{}
	user.Settings = map[string]any{}
	if err := fromJSONB(demographics, &user.Demographics); err != nil {
		return nil, err
	}
	if err := fromJSONB(settings, &user.Settings); err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		user.LastLogin = &t
	}
	return &user, nil
}
