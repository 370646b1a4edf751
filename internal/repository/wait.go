package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// WaitForDB пингует базу с интервалом interval, пока она не ответит или не истечёт timeout.
// Нужен при старте в docker-compose, когда Postgres поднимается дольше приложения
func WaitForDB(ctx context.Context, db *sql.DB, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	slog.Info("waiting for database", "timeout", timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		err := db.PingContext(ctx)
		if err == nil {
			slog.Info("database is reachable")
			return nil
		}
		slog.Debug("database not ready", "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up waiting for database: %w", err)
		case <-ticker.C:
		}
	}
}
