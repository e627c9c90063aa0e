package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/healthtwin-labs/healthtwin/config"
)

// ErrEmailTaken is returned when a signup reuses an existing email.
var ErrEmailTaken = errors.New("email already exists")

// ErrUserNotFound is returned when no account matches the email.
var ErrUserNotFound = errors.New("user not found")

// UserStore persists accounts for the auth endpoints.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (string, error)
	GetByEmail(ctx context.Context, email string) (id string, passwordHash string, err error)
}

// NewUserStore prefers Postgres when configured; otherwise accounts live in
// redis alongside the profiles.
func NewUserStore(ctx context.Context, cfg config.ProfileConfig, logger *log.Logger) (UserStore, error) {
	if cfg.Postgres.URL != "" || cfg.Postgres.Host != "" {
		us, err := NewPostgresUserStore(cfg.Postgres)
		if err == nil {
			return us, nil
		}
		logger.Printf("postgres user store init failed: %v, falling back to redis", err)
	}
	return NewRedisUserStore(ctx, cfg.Redis)
}

// PostgresUserStore keeps accounts in the users table.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(cfg config.PostgresConfig) (*PostgresUserStore, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresUserStore{db: db}, nil
}

func (s *PostgresUserStore) Create(ctx context.Context, email, passwordHash string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		id, email, passwordHash, time.Now())
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", ErrEmailTaken
		}
		return "", err
	}
	return id, nil
}

func (s *PostgresUserStore) GetByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrUserNotFound
	}
	if err != nil {
		return "", "", err
	}
	return id, hash, nil
}

// RedisUserStore keeps accounts as JSON blobs keyed by email.
type RedisUserStore struct {
	client *goredis.Client
}

type userRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewRedisUserStore(ctx context.Context, cfg config.RedisConfig) (*RedisUserStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisUserStore{client: client}, nil
}

func userKey(email string) string { return "user:" + email }

func (s *RedisUserStore) Create(ctx context.Context, email, passwordHash string) (string, error) {
	rec := userRecord{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	ok, err := s.client.SetNX(ctx, userKey(email), data, 0).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrEmailTaken
	}
	return rec.ID, nil
}

func (s *RedisUserStore) GetByEmail(ctx context.Context, email string) (string, string, error) {
	data, err := s.client.Get(ctx, userKey(email)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return "", "", ErrUserNotFound
	}
	if err != nil {
		return "", "", err
	}
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", "", err
	}
	return rec.ID, rec.PasswordHash, nil
}
