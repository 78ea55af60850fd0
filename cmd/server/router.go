package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dingsen2/micronutrient-radar/internal/api"
	apiMiddleware "github.com/dingsen2/micronutrient-radar/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	maxUpload := app.config.Storage.MaxUploadSize

	handlers := routeHandlers{
		auth:        api.NewAuthHandler(app.userService, app.jwtService, app.passwordVerifier, app.logger),
		foodImages:  api.NewFoodImageHandler(app.foodImageService, maxUpload, app.logger),
		nutrients:   api.NewNutrientHandler(app.nutrientService, app.taskService, app.logger),
		foodHistory: api.NewFoodHistoryHandler(app.foodHistoryService, app.logger),
		receipts:    api.NewReceiptHandler(app.receiptService, maxUpload, app.logger),
		ledgers:     api.NewLedgerHandler(app.ledgerService, app.logger),
		authMW: apiMiddleware.NewAuthMiddleware(
			app.jwtService,
			app.userService,
			app.config.Auth.SkipAuth,
			app.logger,
		),
	}
	if app.config.Auth.SkipAuth {
		app.logger.Warn("authentication is disabled; requests act as the first registered user")
	}

	return newRouter(app.config.Server.APIPrefix, app.config.Server.CORSOrigins, app.logger, handlers)
}

type routeHandlers struct {
	auth        *api.AuthHandler
	foodImages  *api.FoodImageHandler
	nutrients   *api.NutrientHandler
	foodHistory *api.FoodHistoryHandler
	receipts    *api.ReceiptHandler
	ledgers     *api.LedgerHandler
	authMW      *apiMiddleware.AuthMiddleware
}

// newRouter mounts every route under prefix. It takes the handlers directly
// so tests can build a router from fakes.
func newRouter(prefix string, corsOrigins []string, logger *slog.Logger, h routeHandlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewCORSMiddleware(corsOrigins))
	r.Use(apiMiddleware.NewTraceMiddleware(logger))

	r.Route(prefix, func(r chi.Router) {
		r.Get("/health", api.Health)

		r.Post("/users/register", h.auth.Register)
		r.Post("/users/login", h.auth.Login)
		r.Post("/users/refresh", h.auth.RefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(h.authMW.Authenticate)

			r.Get("/users/me", h.auth.Me)
			r.Put("/users/me", h.auth.UpdateMe)

			r.Post("/food-images/upload", h.foodImages.Upload)
			r.Get("/food-images", h.foodImages.List)
			r.Get("/food-images/{id}", h.foodImages.Get)

			r.Post("/nutrients/estimate", h.nutrients.Estimate)
			r.Get("/nutrients/task/{task_id}", h.nutrients.TaskStatus)
			r.Get("/tasks/{task_id}", h.nutrients.TaskStatus)

			r.Post("/food-history", h.foodHistory.Create)
			r.Get("/food-history", h.foodHistory.List)
			r.Get("/food-history/{id}", h.foodHistory.Get)

			r.Post("/receipts/upload", h.receipts.Upload)
			r.Get("/receipts/{id}", h.receipts.Get)

			r.Get("/ledgers", h.ledgers.List)
			r.Get("/ledgers/current", h.ledgers.Current)
		})
	})

	return r
}
