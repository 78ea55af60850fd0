package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MockJWTService is a function-field mock of JWTService for handler and
// middleware tests. Unset functions fall back to the fixed fields.
type MockJWTService struct {
	GenerateTokenFunc        func(ctx context.Context, userID uuid.UUID) (string, error)
	ValidateTokenFunc        func(ctx context.Context, tokenString string) (*Claims, error)
	GenerateRefreshTokenFunc func(ctx context.Context, userID uuid.UUID) (string, error)
	ValidateRefreshTokenFunc func(ctx context.Context, tokenString string) (*Claims, error)
	GenerateTokenPairFunc    func(ctx context.Context, userID uuid.UUID) (*TokenPair, error)

	Token           string
	RefreshToken    string
	TokenError      error
	ValidationError error
	Claims          *Claims
	TokenLifetime   time.Duration
}

var _ JWTService = (*MockJWTService)(nil)

// NewMockJWTService creates a mock whose tokens validate as userID.
func NewMockJWTService(userID uuid.UUID) *MockJWTService {
	now := time.Now()
	return &MockJWTService{
		Token:         "mock-jwt-token",
		RefreshToken:  "mock-refresh-token",
		TokenLifetime: time.Hour,
		Claims: &Claims{
			UserID:    userID,
			TokenType: TokenTypeAccess,
			Subject:   userID.String(),
			IssuedAt:  now,
			ExpiresAt: now.Add(time.Hour),
			ID:        uuid.New().String(),
		},
	}
}

// GenerateToken implements JWTService.
func (m *MockJWTService) GenerateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	if m.GenerateTokenFunc != nil {
		return m.GenerateTokenFunc(ctx, userID)
	}
	return m.Token, m.TokenError
}

// ValidateToken implements JWTService.
func (m *MockJWTService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, tokenString)
	}
	if m.ValidationError != nil {
		return nil, m.ValidationError
	}
	return m.Claims, nil
}

// GenerateRefreshToken implements JWTService.
func (m *MockJWTService) GenerateRefreshToken(ctx context.Context, userID uuid.UUID) (string, error) {
	if m.GenerateRefreshTokenFunc != nil {
		return m.GenerateRefreshTokenFunc(ctx, userID)
	}
	return m.RefreshToken, m.TokenError
}

// ValidateRefreshToken implements JWTService.
func (m *MockJWTService) ValidateRefreshToken(ctx context.Context, tokenString string) (*Claims, error) {
	if m.ValidateRefreshTokenFunc != nil {
		return m.ValidateRefreshTokenFunc(ctx, tokenString)
	}
	if m.ValidationError != nil {
		return nil, m.ValidationError
	}
	if m.Claims == nil {
		return nil, ErrInvalidRefreshToken
	}
	refreshClaims := *m.Claims
	refreshClaims.TokenType = TokenTypeRefresh
	return &refreshClaims, nil
}

// GenerateTokenPair implements JWTService.
func (m *MockJWTService) GenerateTokenPair(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	if m.GenerateTokenPairFunc != nil {
		return m.GenerateTokenPairFunc(ctx, userID)
	}
	if m.TokenError != nil {
		return nil, m.TokenError
	}
	return &TokenPair{
		AccessToken:  m.Token,
		RefreshToken: m.RefreshToken,
		ExpiresAt:    time.Now().Add(m.TokenLifetime),
	}, nil
}
