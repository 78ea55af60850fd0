package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dingsen2/micronutrient-radar/internal/api/shared"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
	"github.com/dingsen2/micronutrient-radar/internal/service"
	"github.com/dingsen2/micronutrient-radar/internal/service/auth"
	"github.com/dingsen2/micronutrient-radar/internal/store"
)

// AuthHandler handles registration, login, token refresh and the current
// user's profile.
type AuthHandler struct {
	users            service.UserService
	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier
	logger           *slog.Logger
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(
	users service.UserService,
	jwtService auth.JWTService,
	passwordVerifier auth.PasswordVerifier,
	logger *slog.Logger,
) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		users:            users,
		jwtService:       jwtService,
		passwordVerifier: passwordVerifier,
		logger:           logger.With("component", "auth_handler"),
	}
}

// Register handles POST /users/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req RegisterRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		handleValidationError(w, r, err)
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create user")
		return
	}

	log.Info("user registered", "user_id", user.ID)
	shared.RespondWithJSON(w, r, http.StatusCreated, user)
}

// Login handles POST /users/login. Unknown emails and wrong passwords get
// the same response.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req LoginRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		handleValidationError(w, r, err)
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if store.IsNotFoundError(err) {
			HandleAPIError(w, r, auth.ErrInvalidCredentials, "")
			return
		}
		HandleAPIError(w, r, err, "Failed to authenticate user")
		return
	}

	if err := h.passwordVerifier.Compare(user.HashedPassword, req.Password); err != nil {
		log.Debug("password mismatch", "user_id", user.ID)
		HandleAPIError(w, r, auth.ErrInvalidCredentials, "")
		return
	}

	pair, err := h.jwtService.GenerateTokenPair(r.Context(), user.ID)
	if err != nil {
		log.Error("failed to generate tokens", "error", err, "user_id", user.ID)
		HandleAPIError(w, r, err, "Failed to generate authentication token")
		return
	}

	if err := h.users.RecordActivity(r.Context(), user); err != nil {
		log.Warn("failed to record login", "error", err, "user_id", user.ID)
	}

	log.Info("user logged in", "user_id", user.ID)
	shared.RespondWithJSON(w, r, http.StatusOK, newTokenResponse(pair))
}

// RefreshToken handles POST /users/refresh.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req RefreshTokenRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		handleValidationError(w, r, err)
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	// The user may have been deleted since the refresh token was issued.
	user, err := h.users.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if store.IsNotFoundError(err) {
			HandleAPIError(w, r, auth.ErrInvalidRefreshToken, "")
			return
		}
		HandleAPIError(w, r, err, "Failed to refresh token")
		return
	}

	pair, err := h.jwtService.GenerateTokenPair(r.Context(), user.ID)
	if err != nil {
		log.Error("failed to generate tokens", "error", err, "user_id", user.ID)
		HandleAPIError(w, r, err, "Failed to generate authentication token")
		return
	}

	log.Debug("token refreshed", "user_id", user.ID)
	shared.RespondWithJSON(w, r, http.StatusOK, newTokenResponse(pair))
}

// Me handles GET /users/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve user")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, user)
}

// UpdateMe handles PUT /users/me.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		handleValidationError(w, r, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, req.Demographics, req.Settings)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update profile")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, user)
}

func newTokenResponse(pair *auth.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    pair.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
