package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"dixi/internal/domain"
)

// redisStore keeps the log as one JSON string value.
type redisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func newRedisStore(client *redis.Client, key string, ttl time.Duration) *redisStore {
	return &redisStore{client: client, key: key, ttl: defaultTTL(ttl)}
}

func (s *redisStore) Load(ctx context.Context) ([]domain.Message, error) {
	val, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return []domain.Message{}, nil
	}
	if err != nil {
		return nil, err
	}

	if s.ttl > 0 {
		_ = s.client.Expire(ctx, s.key, s.ttl).Err()
	}
	return decodeLog(val)
}

func (s *redisStore) Save(ctx context.Context, messages []domain.Message) error {
	blob, err := encodeLog(messages)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, blob, s.ttl).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
