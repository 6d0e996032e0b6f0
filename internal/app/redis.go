package app

import (
	"esign-sync/internal/common/logging"
	"esign-sync/internal/locks"
	"esign-sync/internal/redis"
)

func (app *App) initializeRedis() error {
	if !app.Config.RedisEnabled() {
		app.Logger.Info("Redis: Not configured (process token cache and locks stay local)")
		return nil
	}

	redisClient, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDBNumber(),
		PoolSize: app.Config.RedisPoolSizeNumber(),
	})
	if err != nil {
		return err
	}

	app.RedisClient = redisClient
	app.Logger.Info("Redis: Connected", logging.String("address", app.Config.RedisAddress))
	return nil
}

// initializeLocks picks redsync when redis is up and in-process locks
// otherwise.
func (app *App) initializeLocks() error {
	lm, err := locks.NewLockManager(app.RedisClient)
	if err != nil {
		return err
	}
	app.Locks = lm
	if app.RedisClient != nil {
		app.Logger.Info("Distributed Locks: Enabled")
	}
	return nil
}
