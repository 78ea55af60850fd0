package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingsen2/micronutrient-radar/internal/api"
	apiMiddleware "github.com/dingsen2/micronutrient-radar/internal/api/middleware"
	"github.com/dingsen2/micronutrient-radar/internal/config"
	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/service"
	"github.com/dingsen2/micronutrient-radar/internal/service/auth"
	"github.com/dingsen2/micronutrient-radar/internal/store"
)

type stubUsers struct {
	user *domain.User
}

func (s *stubUsers) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, store.ErrUserNotFound
	}
	return s.user, nil
}

func (s *stubUsers) GetFirstUser(context.Context) (*domain.User, error) {
	if s.user == nil {
		return nil, service.ErrNoUsers
	}
	return s.user, nil
}

func (s *stubUsers) RecordActivity(context.Context, *domain.User) error { return nil }

type stubLedgers struct {
	service.LedgerService
}

func (stubLedgers) CurrentWeek(context.Context, uuid.UUID) (*domain.NutrientLedger, error) {
	return nil, store.ErrLedgerNotFound
}

func testRouter(t *testing.T, skipAuth bool) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	user, err := domain.NewUser("cook@example.com", "correct-horse")
	require.NoError(t, err)
	users := &stubUsers{user: user}
	jwt := auth.NewMockJWTService(user.ID)

	h := routeHandlers{
		auth:        api.NewAuthHandler(nil, jwt, auth.NewBcryptVerifier(), logger),
		foodImages:  api.NewFoodImageHandler(nil, 0, logger),
		nutrients:   api.NewNutrientHandler(nil, nil, logger),
		foodHistory: api.NewFoodHistoryHandler(nil, logger),
		receipts:    api.NewReceiptHandler(nil, 0, logger),
		ledgers:     api.NewLedgerHandler(stubLedgers{}, logger),
		authMW:      apiMiddleware.NewAuthMiddleware(jwt, users, skipAuth, logger),
	}
	return newRouter("/api/v1", []string{"http://localhost:3000"}, logger, h)
}

func TestRouterHealth(t *testing.T) {
	router := testRouter(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(apiMiddleware.TraceIDHeader))
}

func TestRouterProtectedRoutesRequireToken(t *testing.T) {
	router := testRouter(t, false)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/users/me"},
		{http.MethodPut, "/api/v1/users/me"},
		{http.MethodPost, "/api/v1/food-images/upload"},
		{http.MethodGet, "/api/v1/food-images"},
		{http.MethodGet, "/api/v1/food-images/" + uuid.NewString()},
		{http.MethodPost, "/api/v1/nutrients/estimate"},
		{http.MethodGet, "/api/v1/nutrients/task/" + uuid.NewString()},
		{http.MethodGet, "/api/v1/tasks/" + uuid.NewString()},
		{http.MethodPost, "/api/v1/food-history"},
		{http.MethodGet, "/api/v1/food-history"},
		{http.MethodGet, "/api/v1/food-history/" + uuid.NewString()},
		{http.MethodPost, "/api/v1/receipts/upload"},
		{http.MethodGet, "/api/v1/receipts/" + uuid.NewString()},
		{http.MethodGet, "/api/v1/ledgers"},
		{http.MethodGet, "/api/v1/ledgers/current"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRouterAuthenticatedRequest(t *testing.T) {
	router := testRouter(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledgers/current", nil)
	req.Header.Set("Authorization", "Bearer mock-jwt-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Ledger not found", body["error"])
	assert.Equal(t, w.Header().Get(apiMiddleware.TraceIDHeader), body["trace_id"])
}

func TestRouterSkipAuth(t *testing.T) {
	router := testRouter(t, true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledgers/current", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code, "bypass reaches the handler without a token")
}

func TestRouterCORSPreflight(t *testing.T) {
	router := testRouter(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/food-images/upload", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterUnknownRoute(t *testing.T) {
	router := testRouter(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartHTTPServerStopsOnCancel(t *testing.T) {
	app := &application{
		config: &config.Config{Server: config.ServerConfig{Port: 0}},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- app.startHTTPServer(ctx, http.NotFoundHandler()) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
