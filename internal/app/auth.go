package app

import (
	"esign-sync/internal/auth"
	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/crypto"
	"esign-sync/internal/oauth2"
)

// initializeEncryption resolves the master key that seals stored tokens.
func (app *App) initializeEncryption() error {
	key, err := crypto.NewKeySource(crypto.KeyConfig{
		KeyB64:     app.Config.MasterKeyB64,
		Passphrase: app.Config.MasterPassphrase,
		KeyDir:     app.Config.KeyDir,
	}).Key()
	if err != nil {
		return errors.ConfigError("failed to resolve the token master key: " + err.Error())
	}

	codec, err := crypto.NewCodec(key)
	if err != nil {
		return err
	}
	app.Codec = codec
	return nil
}

func (app *App) initializeAuth() error {
	// A nil *redis.Client must not reach the interface.
	var revoked auth.RevocationStore
	if app.RedisClient != nil {
		revoked = app.RedisClient
	} else {
		app.Logger.Info("Token revocation disabled (requires Redis)")
	}

	authInstance, err := auth.New(app.Config.JWTSecret, revoked, auth.NewSessionStore(auth.DefaultSessionTTL))
	if err != nil {
		return err
	}
	app.Auth = authInstance
	return nil
}

func (app *App) initializeOAuth() {
	app.Provider = oauth2.NewProvider(oauth2.ProviderConfig{
		ClientID:           app.Config.DocuSignClientID,
		RedirectURI:        app.Config.DocuSignRedirectURI,
		OAuthBase:          app.Config.DocuSignOAuthBase,
		Origin:             app.Config.DocuSignOrigin,
		PreferredAccountID: app.Config.DocuSignAccountID,
		EnforceAccountID:   app.Config.DocuSignEnforceAccountID,
	}, app.outboundClient(), app.Logger)

	var cache oauth2.TokenCache
	if app.RedisClient != nil {
		cache = oauth2.NewRedisTokenCache(app.RedisClient, app.Codec, app.Logger)
		app.Logger.Info("OAuth2 manager initialized", logging.String("process_cache", "redis"))
	} else {
		cache = oauth2.NewMemoryTokenCache()
		app.Logger.Info("OAuth2 manager initialized", logging.String("process_cache", "memory"))
	}

	app.Tokens = oauth2.NewManager(app.Storage, app.Codec, app.Provider,
		oauth2.WithTokenCache(cache),
		oauth2.WithLockManager(app.Locks),
		oauth2.WithLogger(app.Logger),
	)
}
