package app

import (
	"net/http"

	commonhttp "esign-sync/internal/common/http"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/connect"
	"esign-sync/internal/docusign"
	"esign-sync/internal/envelope"
	"esign-sync/internal/host"
	"esign-sync/internal/reconciler"
	"esign-sync/internal/signature"
)

// outboundClient is shared by the OAuth provider and the REST client so both
// draw from one connection pool.
func (app *App) outboundClient() *http.Client {
	if app.httpClient == nil {
		connectTimeout, socketTimeout, poolWait := app.Config.HTTPTimeouts()
		app.httpClient = commonhttp.NewHTTPClientWithTimeouts(connectTimeout, socketTimeout, poolWait)
	}
	return app.httpClient
}

func (app *App) initializeDocuSign() {
	app.DocuSign = docusign.NewClient(app.outboundClient(), docusign.Config{
		DefaultRestBase: app.Config.DocuSignRestBase,
		RatePerSecond:   app.Config.APIRatePerSecond(),
	}, app.Logger)

	app.Builder = envelope.NewBuilder(envelope.NotificationConfig{
		URL:            app.Config.WebhookURL,
		HMACKey:        app.Config.ConnectHMACKey,
		Secret:         app.Config.WebhookSecret,
		IncludeSecret:  app.Config.WebhookIncludeSecret,
		IncludeHostKey: app.Config.WebhookIncludeHostKey,
	})
	if app.Config.WebhookURL == "" {
		app.Logger.Info("Push notifications: Not registered (DOCUSIGN_WEBHOOK_URL unset)")
	}
}

func (app *App) initializeHost() error {
	attachments, err := host.NewFSAttachments(app.Config.AttachmentsDir, app.Logger)
	if err != nil {
		return err
	}
	app.Attachments = attachments
	app.Logger.Info("Host attachments", logging.String("dir", app.Config.AttachmentsDir))
	return nil
}

// initializeSync wires status reconciliation, the push notification pipeline
// and the background poller.
func (app *App) initializeSync() {
	app.Reconciler = reconciler.New(app.DocuSign, app.Tokens, app.Storage, app.Attachments, host.AllowAll{},
		reconciler.WithLockManager(app.Locks),
		reconciler.WithLogger(app.Logger),
	)

	verifier := signature.NewVerifier(signature.Config{
		HMACKey:      app.Config.ConnectHMACKey,
		SharedSecret: app.Config.WebhookSecret,
		RequireAuth:  app.Config.WebhookRequireAuth,
	}, app.Logger)
	if !app.Config.WebhookRequireAuth && app.Config.ConnectHMACKey == "" && app.Config.WebhookSecret == "" {
		app.Logger.Warn("Push notifications are accepted without authentication")
	}

	resolver := connect.NewResolver(app.Storage, app.Config.WebhookIncludeHostKey, app.Logger)
	app.Processor = connect.NewProcessor(verifier, resolver, app.Storage, app.Reconciler, app.Logger)

	if app.Config.StatusPollSchedule != "" {
		app.Poller = reconciler.NewPoller(app.Reconciler, app.Storage, app.Locks, app.Config.StatusPollSchedule, app.Logger)
	}
}
