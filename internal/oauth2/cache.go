package oauth2

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"esign-sync/internal/common/logging"
	"esign-sync/internal/crypto"
	"esign-sync/internal/redis"
)

// SessionCache is the per-session tier. It is implemented by the browser
// session and may be nil for calls without one (webhooks, the poller).
type SessionCache interface {
	CachedAccessToken() (string, bool)
	SetCachedAccessToken(token string, expiresAt time.Time)
	ClearCachedAccessToken()
}

// TokenCache is the process-level tier. It is best effort: errors are
// swallowed and a miss always falls through to persisted storage.
type TokenCache interface {
	Get(ctx context.Context, userKey string) (string, bool)
	Set(ctx context.Context, userKey, accessToken string, expiresAt time.Time)
	Delete(ctx context.Context, userKey string)
}

// NopTokenCache disables the process tier for stateless deployments.
type NopTokenCache struct{}

func (NopTokenCache) Get(context.Context, string) (string, bool) {
	return "", false
}

func (NopTokenCache) Set(context.Context, string, string, time.Time) {}

func (NopTokenCache) Delete(context.Context, string) {}

// MemoryTokenCache keeps tokens in process memory until they expire.
type MemoryTokenCache struct {
	cache *gocache.Cache
}

// NewMemoryTokenCache creates an empty in-process cache. Expired entries are
// swept every ten minutes.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{cache: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (c *MemoryTokenCache) Get(_ context.Context, userKey string) (string, bool) {
	v, ok := c.cache.Get(userKey)
	if !ok {
		return "", false
	}
	token, _ := v.(string)
	return token, token != ""
}

func (c *MemoryTokenCache) Set(_ context.Context, userKey, accessToken string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 || accessToken == "" {
		c.cache.Delete(userKey)
		return
	}
	c.cache.Set(userKey, accessToken, ttl)
}

func (c *MemoryTokenCache) Delete(_ context.Context, userKey string) {
	c.cache.Delete(userKey)
}

// RedisTokenCache shares the process tier between replicas. Values are
// sealed with the codec and expire with the token.
type RedisTokenCache struct {
	client *redis.Client
	codec  *crypto.Codec
	prefix string
	logger logging.Logger
}

// NewRedisTokenCache creates a Redis-backed cache under the "esign:token:"
// key prefix.
func NewRedisTokenCache(client *redis.Client, codec *crypto.Codec, logger logging.Logger) *RedisTokenCache {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &RedisTokenCache{
		client: client,
		codec:  codec,
		prefix: "esign:token:",
		logger: logger,
	}
}

func (c *RedisTokenCache) Get(ctx context.Context, userKey string) (string, bool) {
	sealed, err := c.client.Get(ctx, c.prefix+userKey)
	if err != nil {
		if !redis.IsNil(err) {
			c.logger.Debug("Token cache read failed", logging.String("user", userKey), logging.Err(err))
		}
		return "", false
	}
	token, err := c.codec.Decrypt(sealed)
	if err != nil {
		c.logger.Warn("Discarding unreadable cached token", logging.String("user", userKey))
		c.Delete(ctx, userKey)
		return "", false
	}
	return token, token != ""
}

func (c *RedisTokenCache) Set(ctx context.Context, userKey, accessToken string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 || accessToken == "" {
		return
	}
	sealed, err := c.codec.Encrypt(accessToken)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+userKey, sealed, ttl); err != nil {
		c.logger.Debug("Token cache write failed", logging.String("user", userKey), logging.Err(err))
	}
}

func (c *RedisTokenCache) Delete(ctx context.Context, userKey string) {
	_ = c.client.Delete(ctx, c.prefix+userKey)
}
