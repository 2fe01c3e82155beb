package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/adscript-api/internal/api"
	apiMiddleware "github.com/phrazzld/adscript-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	authHandler := api.NewAuthHandler(app.userService, app.jwtService, app.config.Auth, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService, app.logger)
	taskHandler := api.NewAdScriptHandler(app.adScriptService, app.logger)

	rateLimit := apiMiddleware.TaskCreationRateLimit(
		app.config.N8N.RateLimit.MaxAttempts,
		app.config.N8N.RateLimit.Window(),
		app.logger,
	)
	webhookGate := apiMiddleware.WebhookGate(app.logger,
		apiMiddleware.NewHMACSignatureValidator(app.config.N8N.WebhookSecret, app.logger),
		apiMiddleware.NewAPIKeyValidator(app.config.N8N.APIKey, app.logger),
	)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.RefreshToken)

		r.Route("/ad-scripts", func(r chi.Router) {
			r.Get("/health", taskHandler.Health)

			// n8n callbacks authenticate with the webhook credentials, not a user token
			r.With(webhookGate).Post("/{"+api.TaskIDParam+"}/result", taskHandler.Result)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Authenticate)

				r.With(rateLimit).Post("/", taskHandler.Store)
				r.Get("/", taskHandler.Index)
				r.Get("/{"+api.TaskIDParam+"}", taskHandler.Show)
			})
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
