package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"ArticlesCatalog/internal/model"
)

// ClickhouseRepo пишет события каталога в ClickHouse пакетами
type ClickhouseRepo struct {
	db *sql.DB
}

// NewClickhouseRepo создаёт новый репозиторий для ClickHouse
func NewClickhouseRepo(db *sql.DB) *ClickhouseRepo {
	return &ClickhouseRepo{db: db}
}

const insertEventQuery = `INSERT INTO events_log (Action, ArticleId, Code, Description, Price, Created, Updated, Failed, EventTime) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// BatchInsertLogs записывает пакет событий в events_log.
// clickhouse-go собирает все Exec подготовленного запроса в один блок и отправляет его на Commit
func (r *ClickhouseRepo) BatchInsertLogs(ctx context.Context, events []model.ArticleEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin clickhouse batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertEventQuery)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare events insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range events {
		eventTime := e.EventTime
		if eventTime.IsZero() {
			eventTime = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			e.Action, e.ArticleID, e.Code, e.Description, e.Price,
			uint32(e.Created), uint32(e.Updated), uint32(e.Failed),
			eventTime,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to append event %q: %w", e.Action, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clickhouse batch: %w", err)
	}
	slog.Debug("events written to clickhouse", "count", len(events))
	return nil
}
