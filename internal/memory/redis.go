package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/healthtwin-labs/healthtwin/config"
)

const sessionKeyPrefix = "session:"

// RedisDurableStore is the tier-2 backing store: one JSON blob per session
// under session:<id>, expiring with the idle TTL so abandoned conversations
// age out of redis even without a sweep.
type RedisDurableStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDurableStore connects and pings the configured redis instance.
func NewRedisDurableStore(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*RedisDurableStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisDurableStore{client: client, ttl: ttl}, nil
}

func (r *RedisDurableStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	val, err := r.client.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}
	return &s, nil
}

func (r *RedisDurableStore) Put(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, sessionKeyPrefix+s.ID, data, r.ttl).Err()
}

func (r *RedisDurableStore) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, sessionKeyPrefix+sessionID).Err()
}
