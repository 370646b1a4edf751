package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	nats "github.com/nats-io/nats.go"

	"ArticlesCatalog/internal/config"
	"ArticlesCatalog/internal/repository"
	"ArticlesCatalog/internal/service"
	"ArticlesCatalog/pkg/cache"
	"ArticlesCatalog/pkg/logger"
	"ArticlesCatalog/pkg/logging"
)

// loadConfig читает конфигурацию и настраивает slog
func loadConfig() (*config.Config, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Security.Debug, cfg.Logging.Format)
	if cfg.UsesDefaultSecret() && !cfg.Security.Debug {
		slog.Warn("SECRET_KEY is not set, using the development key with DEBUG off")
	}
	return cfg, nil
}

// openDatabase подключается к Postgres и ждёт его готовности
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := repository.WaitForDB(ctx, db, cfg.WaitTimeout, cfg.WaitInterval); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// newMigrator создаёт golang-migrate поверх открытого подключения
func newMigrator(db *sql.DB, dir string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func migrateUp(db *sql.DB, dir string) error {
	m, err := newMigrator(db, dir)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// app хранит собранный сервис со всеми внешними зависимостями
type app struct {
	db      *sql.DB
	repo    *repository.ArticleRepository
	service *service.ArticlesService
	redis   *cache.RedisClient
	nats    *nats.Conn
}

// newApp открывает Postgres, применяет миграции и подключает необязательные Redis и NATS.
// Недоступные Redis и NATS не мешают старту: сервис работает без кэша и журнала событий
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db, cfg.Database.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, err
	}
	a := &app{db: db, repo: repository.NewArticleRepository(db)}

	var c service.Cache
	if cfg.Redis.Addr != "" {
		a.redis = cache.NewRedisClient(cfg.Redis.Addr)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := a.redis.Ping(pingCtx); err != nil {
			slog.Warn("redis is unavailable, reads will hit the database", "addr", cfg.Redis.Addr, "error", err)
		}
		cancel()
		c = a.redis
	}

	var p service.Publisher
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats is unavailable, events will not be published", "url", cfg.NATS.URL, "error", err)
		} else {
			a.nats = nc
			p = logger.NewClient(nc, cfg.NATS.Subject)
		}
	}

	a.service = service.NewArticlesService(a.repo, c, p, cfg.Redis.TTL)
	return a, nil
}

// Close закрывает подключения в обратном порядке
func (a *app) Close() {
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			slog.Warn("failed to drain NATS connection", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("failed to close Redis client", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}
