package store

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreOption is a functional option for configuring a message store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	key         string
	filePath    string
	redisClient *redis.Client
	redisTTL    time.Duration
	sqliteDSN   string
}

// WithKey overrides the key the log is stored under.
func WithKey(key string) StoreOption {
	return func(c *storeConfig) {
		if key != "" {
			c.key = key
		}
	}
}

// WithFilePath sets the JSON file used by the file store.
func WithFilePath(path string) StoreOption {
	return func(c *storeConfig) {
		c.filePath = path
	}
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the TTL for the Redis key. Zero keeps the key forever.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// WithSQLiteDSN sets the database for the SQLite store.
func WithSQLiteDSN(dsn string) StoreOption {
	return func(c *storeConfig) {
		c.sqliteDSN = dsn
	}
}
