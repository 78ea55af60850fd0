package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/api/shared"
	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
	"github.com/dingsen2/micronutrient-radar/internal/service"
	"github.com/dingsen2/micronutrient-radar/internal/service/auth"
	"github.com/dingsen2/micronutrient-radar/internal/store"
)

// UserResolver is the part of the user service the auth middleware needs.
type UserResolver interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	GetFirstUser(ctx context.Context) (*domain.User, error)
	RecordActivity(ctx context.Context, user *domain.User) error
}

// AuthMiddleware provides JWT authentication for routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
	users      UserResolver
	skipAuth   bool
	logger     *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. With skipAuth set, no token
// is read and every request acts as the earliest registered user.
func NewAuthMiddleware(
	jwtService auth.JWTService,
	users UserResolver,
	skipAuth bool,
	logger *slog.Logger,
) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		jwtService: jwtService,
		users:      users,
		skipAuth:   skipAuth,
		logger:     logger.With("component", "auth_middleware"),
	}
}

// Authenticate resolves the calling user and adds their id to the request
// context. Requests that cannot be authenticated get a 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContextOrDefault(r.Context(), m.logger)

		var (
			user *domain.User
			err  error
		)
		if m.skipAuth {
			user, err = m.bypassUser(w, r)
		} else {
			user, err = m.tokenUser(w, r)
		}
		if err != nil || user == nil {
			return
		}

		if err := m.users.RecordActivity(r.Context(), user); err != nil {
			log.Warn("failed to record user activity", "error", err, "user_id", user.ID)
		}

		ctx := shared.WithUserID(r.Context(), user.ID)
		ctx = logger.WithLogger(ctx, log.With("user_id", user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) bypassUser(w http.ResponseWriter, r *http.Request) (*domain.User, error) {
	user, err := m.users.GetFirstUser(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoUsers) {
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized,
				"No users registered", err)
			return nil, err
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Authentication error", err)
		return nil, err
	}
	return user, nil
}

func (m *AuthMiddleware) tokenUser(w http.ResponseWriter, r *http.Request) (*domain.User, error) {
	token, err := bearerToken(r)
	if err != nil {
		msg := "Invalid authorization format"
		if errors.Is(err, auth.ErrMissingToken) {
			msg = "Authorization header required"
		}
		shared.RespondWithError(w, r, http.StatusUnauthorized, msg)
		return nil, err
	}

	claims, err := m.jwtService.ValidateToken(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Token expired", err)
		case errors.Is(err, auth.ErrInvalidToken),
			errors.Is(err, auth.ErrTokenNotYetValid),
			errors.Is(err, auth.ErrWrongTokenType):
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid token", err,
				shared.WithElevatedLogLevel())
		default:
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Authentication error", err)
		}
		return nil, err
	}

	user, err := m.users.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if store.IsNotFoundError(err) {
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized,
				"Could not validate credentials", err, shared.WithElevatedLogLevel())
			return nil, err
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Authentication error", err)
		return nil, err
	}
	return user, nil
}

var errBadScheme = errors.New("authorization header is not a bearer token")

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", auth.ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errBadScheme
	}
	return strings.TrimSpace(token), nil
}

// GetUserID extracts the authenticated user's id from the request context.
func GetUserID(r *http.Request) (uuid.UUID, bool) {
	return shared.UserIDFromContext(r.Context())
}
