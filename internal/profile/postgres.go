package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/healthtwin-labs/healthtwin/config"
)

// PostgresStore keeps one row per user with the profile document as JSONB.
// Schema lives in migrations/.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings the configured database.
func NewPostgresStore(cfg config.PostgresConfig) (*PostgresStore, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Load(ctx context.Context, userID string) (*HealthTwinProfile, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM health_twin_profiles WHERE user_id = $1`, userID).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var p HealthTwinProfile
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", userID, err)
	}
	return &p, nil
}

func (s *PostgresStore) Save(ctx context.Context, p *HealthTwinProfile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO health_twin_profiles (user_id, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		p.UserID, doc)
	return err
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }
