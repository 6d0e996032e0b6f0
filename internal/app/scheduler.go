package app

import (
	"context"

	"github.com/robfig/cron/v3"

	"esign-sync/internal/common/logging"
)

// sessionSweepSchedule drops idle browser sessions.
const sessionSweepSchedule = "@every 10m"

// startBackground starts the status poller and the session sweep.
func (app *App) startBackground() error {
	if app.Poller != nil {
		if err := app.Poller.Start(); err != nil {
			return err
		}
	} else {
		app.Logger.Info("Status polling disabled (STATUS_POLL_SCHEDULE empty)")
	}

	c := cron.New()
	sessions := app.Auth.Sessions()
	if _, err := c.AddFunc(sessionSweepSchedule, func() {
		if n := sessions.CleanupExpired(); n > 0 {
			app.Logger.Debug("Expired sessions removed", logging.Int("count", n))
		}
	}); err != nil {
		return err
	}
	c.Start()
	app.cron = c
	return nil
}

// stopBackground halts scheduled work, waiting for running jobs until ctx
// is done.
func (app *App) stopBackground(ctx context.Context) {
	if app.Poller != nil {
		app.Poller.Stop(ctx)
	}
	if app.cron != nil {
		select {
		case <-app.cron.Stop().Done():
		case <-ctx.Done():
		}
		app.cron = nil
	}
}
