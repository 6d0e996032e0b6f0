package app

import (
	"net/http"

	"esign-sync/internal/auth"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/ratelimit"
)

// webhookBurst bounds how many notifications one sender may push at once.
const webhookBurst = 50

// InitializeRateLimiters returns the per-caller API limiter and the
// per-address webhook limiter. Both are nil when rate limiting is off.
func (app *App) InitializeRateLimiters() (api, webhook *ratelimit.Limiter) {
	perSecond, burst := app.Config.APIRateLimit()
	if perSecond <= 0 {
		app.Logger.Info("Rate Limiting: Disabled")
		return nil, nil
	}

	app.Logger.Info("Rate Limiting: Enabled",
		logging.String("limit", app.Config.RateLimitDefault),
		logging.String("window", app.Config.RateLimitWindow),
	)
	api = ratelimit.NewLimiter(ratelimit.Config{PerSecond: perSecond, Burst: burst})
	webhook = ratelimit.NewLimiter(ratelimit.Config{PerSecond: perSecond, Burst: max(burst, webhookBurst)})
	return api, webhook
}

// UserKey keys authenticated requests on the caller and falls back to the
// client address.
func UserKey(r *http.Request) string {
	if id, ok := auth.IdentityFromContext(r.Context()); ok && id.UserKey != "" {
		return "user:" + id.UserKey
	}
	return ratelimit.IPBasedKey(r)
}
