// Package store persists the message log as a single JSON blob under one key.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dixi/internal/domain"
)

// DefaultKey is the key the message log is stored under.
const DefaultKey = "messages"

var (
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrInvalidConfig    = errors.New("invalid store configuration")
)

// StoreType selects a driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQLite StoreType = "sqlite"
)

// Store is a message store that owns a connection or file handle.
type Store interface {
	Load(ctx context.Context) ([]domain.Message, error)
	Save(ctx context.Context, messages []domain.Message) error
	Close() error
}

// NewStore creates a Store for the given driver type.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{key: DefaultKey}
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory:
		return newMemoryStore(), nil

	case StoreTypeFile:
		if config.filePath == "" {
			return nil, fmt.Errorf("%w: file store needs a path", ErrInvalidConfig)
		}
		return newFileStore(config.filePath), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, fmt.Errorf("%w: redis store needs a client", ErrInvalidConfig)
		}
		return newRedisStore(config.redisClient, config.key, config.redisTTL), nil

	case StoreTypeSQLite:
		if config.sqliteDSN == "" {
			return nil, fmt.Errorf("%w: sqlite store needs a dsn", ErrInvalidConfig)
		}
		return newSQLiteStore(config.sqliteDSN, config.key)

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, storeType)
	}
}

// encodeLog renders the log as the persisted blob.
func encodeLog(messages []domain.Message) ([]byte, error) {
	if messages == nil {
		messages = []domain.Message{}
	}
	return json.Marshal(messages)
}

// decodeLog parses a persisted blob. An empty blob is an empty log.
func decodeLog(blob []byte) ([]domain.Message, error) {
	blob = bytes.TrimSpace(blob)
	if len(blob) == 0 || bytes.Equal(blob, []byte("null")) {
		return []domain.Message{}, nil
	}
	var messages []domain.Message
	if err := json.Unmarshal(blob, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode message log: %w", err)
	}
	return messages, nil
}

func defaultTTL(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}
