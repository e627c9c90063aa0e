package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/healthtwin-labs/healthtwin/config"
)

const profileKeyPrefix = "profile:"

// RedisStore keeps each profile as a JSON blob under profile:<userID>.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings the configured redis instance.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Load(ctx context.Context, userID string) (*HealthTwinProfile, error) {
	val, err := s.client.Get(ctx, profileKeyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var p HealthTwinProfile
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", userID, err)
	}
	return &p, nil
}

func (s *RedisStore) Save(ctx context.Context, p *HealthTwinProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, profileKeyPrefix+p.UserID, data, 0).Err()
}
