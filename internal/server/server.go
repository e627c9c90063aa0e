package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/healthtwin-labs/healthtwin/config"
	"github.com/healthtwin-labs/healthtwin/internal/agent/core"
	"github.com/healthtwin-labs/healthtwin/internal/agent/telemetry"
	"github.com/healthtwin-labs/healthtwin/internal/memory"
	"github.com/healthtwin-labs/healthtwin/internal/profile"
	"github.com/healthtwin-labs/healthtwin/internal/tools"
)

// Run assembles the pipeline and serves the HTTP API until the context is
// cancelled or the listener fails.
func Run(ctx context.Context, cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	// schema migrations only apply when postgres carries the profiles
	if cfg.Profile.Postgres.URL != "" || cfg.Profile.Postgres.Host != "" {
		dsn, err := cfg.Profile.Postgres.DSN()
		if err == nil {
			if err := Migrate("file://migrations", dsn, "up", 0); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrations: %w", err)
			}
		}
	}

	durable, err := memory.NewRedisDurableStore(ctx, cfg.Memory.Redis, cfg.Memory.IdleTTL)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	sessions := memory.NewStore(durable, memory.Options{
		WindowTurns:    cfg.Memory.WindowTurns,
		IdleTTL:        cfg.Memory.IdleTTL,
		PersistWorkers: cfg.Memory.PersistWorkers,
		PersistQueue:   cfg.Memory.PersistQueue,
	}, nil)
	defer sessions.Close()

	profLogger := log.New(log.Writer(), "[PROFILE] ", log.LstdFlags)
	profiles, err := profile.NewStore(ctx, cfg.Profile, profLogger)
	if err != nil {
		return fmt.Errorf("profile store: %w", err)
	}
	users, err := NewUserStore(ctx, cfg.Profile, profLogger)
	if err != nil {
		return fmt.Errorf("user store: %w", err)
	}

	provider, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}
	nutrition, err := tools.NewNutritionIndex(nil)
	if err != nil {
		return fmt.Errorf("nutrition index: %w", err)
	}
	wearable := tools.NewWearableClient(cfg.Tools.Wearable, nil)

	tel := telemetry.NewTelemetry(cfg.Telemetry)
	orch := core.NewOrchestrator(cfg, provider, sessions, profiles, nutrition, wearable, tel)

	sweeper := memory.NewSweeper(sessions, cfg.Memory.SweepSchedule, nil)
	go sweeper.Run(ctx)

	api := e.Group("/api")
	auth := &AuthHandler{Users: users, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	chat := &ChatHandler{Pipeline: orch, Sessions: sessions, Logger: baseLogger}
	chat.Register(api.Group("/chat"), []byte(secret))

	ph := &ProfileHandler{Profiles: profiles}
	ph.Register(api.Group("/profile"), []byte(secret))

	admin := &AdminHandler{Costs: orch}
	admin.Register(api.Group("/admin"), []byte(secret))

	if addr == "" {
		addr = cfg.Server.Address
	}

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()

	log.Printf("listening on %s", addr)
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
