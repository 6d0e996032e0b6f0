package app

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"esign-sync/internal/handlers"
	"esign-sync/internal/host"
	"esign-sync/internal/server"
)

// Handlers builds the HTTP handlers over the initialized components.
func (app *App) Handlers() *handlers.Handlers {
	var cache handlers.HealthChecker
	if app.RedisClient != nil {
		cache = app.RedisClient
	}
	return handlers.New(handlers.Deps{
		Config:      app.Config,
		Storage:     app.Storage,
		Tokens:      app.Tokens,
		Provider:    app.Provider,
		Sender:      app.DocuSign,
		Builder:     app.Builder,
		Processor:   app.Processor,
		Reconciler:  app.Reconciler,
		Attachments: app.Attachments,
		Permissions: host.AllowAll{},
		Directory:   host.AddressDirectory{},
		Auth:        app.Auth,
		Cache:       cache,
		Logger:      app.Logger,
	})
}

// RunServer starts background jobs and returns the configured HTTP server
// with its router.
func (app *App) RunServer() (*server.Server, http.Handler, error) {
	router := mux.NewRouter()
	apiLimiter, webhookLimiter := app.InitializeRateLimiters()
	SetupRoutes(router, app.Handlers(), app.Auth.RequireAuth, apiLimiter, webhookLimiter)

	if err := app.startBackground(); err != nil {
		return nil, nil, err
	}

	srv := server.New(router, app.Config.Port, app.Config.TLSCertFile, app.Config.TLSKeyFile)
	return srv, router, nil
}

// Shutdown gracefully shuts down the application
func (app *App) Shutdown(ctx context.Context) error {
	app.stopBackground(ctx)
	return nil
}
