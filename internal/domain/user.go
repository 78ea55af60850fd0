package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Password length limits. The upper bound is bcrypt's input limit.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

// Common validation errors
var (
	ErrEmptyUserID         = NewValidationError("user_id", "cannot be empty", nil)
	ErrInvalidEmail        = NewValidationError("email", "has an invalid format", nil)
	ErrEmptyEmail          = NewValidationError("email", "cannot be empty", nil)
	ErrPasswordTooShort    = NewValidationError("password", "must be at least 6 characters long", nil)
	ErrPasswordTooLong     = NewValidationError("password", "must be at most 72 characters long", nil)
	ErrEmptyPassword       = NewValidationError("password", "cannot be empty", nil)
	ErrEmptyHashedPassword = NewValidationError("hashed_password", "cannot be empty", nil)
)

// User is a registered user. Demographics and Settings are free-form objects
// owned by the client.
type User struct {
	ID             uuid.UUID      `json:"id"`
	Email          string         `json:"email"`
	Password       string         `json:"-"` // plaintext, only set during registration
	HashedPassword string         `json:"-"`
	Version        int            `json:"version"`
	Demographics   map[string]any `json:"demographics"`
	Settings       map[string]any `json:"settings"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastLogin      *time.Time     `json:"last_login,omitempty"`
}

// NewUser creates a new User with the given email and plaintext password.
// The password is hashed by the user store on Create.
func NewUser(email, password string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		Password:     password,
		Version:      1,
		Demographics: map[string]any{},
		Settings:     map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}

	if u.Email == "" {
		return ErrEmptyEmail
	}

	if !validateEmailFormat(u.Email) {
		return ErrInvalidEmail
	}

	if u.Password != "" {
		switch {
		case len(u.Password) < MinPasswordLength:
			return ErrPasswordTooShort
		case len(u.Password) > MaxPasswordLength:
			return ErrPasswordTooLong
		}
	} else if u.HashedPassword == "" {
		return ErrEmptyPassword
	}

	return nil
}

// UpdateProfile replaces the non-nil profile sections and bumps Version.
func (u *User) UpdateProfile(demographics, settings map[string]any) {
	if demographics != nil {
		u.Demographics = demographics
	}
	if settings != nil {
		u.Settings = settings
	}
	u.Version++
	u.UpdatedAt = time.Now().UTC()
}

func validateEmailFormat(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}
