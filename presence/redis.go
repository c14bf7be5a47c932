package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements Store using Redis. Records expire by TTL so a
// crashed broker instance leaves no permanent garbage behind.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func recordKey(connectionID string) string {
	return fmt.Sprintf("presence:conn:%s", connectionID)
}

func (s *RedisStore) Track(ctx context.Context, record *Record) error {
	key := recordKey(record.ConnectionID)
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal presence record: %w", err)
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, connectionID string) (*Record, error) {
	key := recordKey(connectionID)
	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Not found is not an error, just means not present
		}
		return nil, err
	}

	var record Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence record: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) Forget(ctx context.Context, connectionID string) error {
	return s.client.Del(ctx, recordKey(connectionID)).Err()
}

// RefreshTTL updates the expiration time of a record key in Redis.
// If the key doesn't exist, it's a no-op which is fine.
func (s *RedisStore) RefreshTTL(ctx context.Context, connectionID string) error {
	return s.client.Expire(ctx, recordKey(connectionID), s.ttl).Err()
}
