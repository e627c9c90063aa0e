package profile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/healthtwin-labs/healthtwin/config"
)

// ErrNotFound is returned when no profile exists for a user yet.
var ErrNotFound = errors.New("profile not found")

// Store is the durable Health Twin store contract. Save is best-effort from
// the pipeline's point of view; callers log and continue on error.
type Store interface {
	Load(ctx context.Context, userID string) (*HealthTwinProfile, error)
	Save(ctx context.Context, p *HealthTwinProfile) error
}

// NewStore builds the configured store. Postgres is preferred when
// configured; otherwise the redis store carries the profiles.
func NewStore(ctx context.Context, cfg config.ProfileConfig, logger *log.Logger) (Store, error) {
	if cfg.Postgres.URL != "" || cfg.Postgres.Host != "" {
		ps, err := NewPostgresStore(cfg.Postgres)
		if err == nil {
			return ps, nil
		}
		logger.Printf("postgres profile store init failed: %v, falling back to redis", err)
	}
	rs, err := NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("profile store: %w", err)
	}
	return rs, nil
}

// LoadOrNew reads a profile, substituting a fresh empty profile when the user
// is unknown or the store is unreachable. The pipeline never fails a turn on
// a profile read.
func LoadOrNew(ctx context.Context, s Store, userID string, logger *log.Logger) *HealthTwinProfile {
	p, err := s.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Printf("profile load for %s failed: %v, starting empty", userID, err)
		}
		return New(userID)
	}
	return p
}
