package app

import (
	"net/http"

	"github.com/robfig/cron/v3"

	"esign-sync/internal/auth"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/config"
	"esign-sync/internal/connect"
	"esign-sync/internal/crypto"
	"esign-sync/internal/docusign"
	"esign-sync/internal/envelope"
	"esign-sync/internal/host"
	"esign-sync/internal/locks"
	"esign-sync/internal/oauth2"
	"esign-sync/internal/reconciler"
	"esign-sync/internal/redis"
	"esign-sync/internal/storage"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Storage     storage.Storage
	RedisClient *redis.Client
	Locks       locks.LockManagerInterface
	Codec       *crypto.Codec
	Auth        *auth.Auth
	Provider    *oauth2.Provider
	Tokens      *oauth2.Manager
	DocuSign    *docusign.Client
	Builder     *envelope.Builder
	Attachments host.Attachments
	Reconciler  *reconciler.Reconciler
	Processor   *connect.Processor
	Poller      *reconciler.Poller
	Logger      logging.Logger

	httpClient *http.Client
	cron       *cron.Cron
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
	}

	// Initialize components in order of dependency
	if err := app.initializeStorage(); err != nil {
		return nil, err
	}

	if err := app.initializeRedis(); err != nil {
		// Redis is optional, just log the error
		app.Logger.Warn("Redis initialization failed, continuing without Redis",
			logging.Err(err))
	}

	if err := app.initializeLocks(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeEncryption(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeAuth(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.initializeOAuth()
	app.initializeDocuSign()

	if err := app.initializeHost(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.initializeSync()
	return app, nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Storage != nil {
		if err := app.Storage.Close(); err != nil {
			app.Logger.Warn("Error closing storage", logging.Err(err))
		}
	}
	if app.Locks != nil {
		_ = app.Locks.Close()
	}
	if app.RedisClient != nil {
		_ = app.RedisClient.Close()
	}
}
