package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ArticlesCatalog/internal/model"
)

// Repo описывает хранилище событий каталога (ClickHouse)
type Repo interface {
	BatchInsertLogs(ctx context.Context, events []model.ArticleEvent) error
}

// Consumer буферизует события из NATS и отправляет их пакетами.
// batchSize определяет максимальное количество событий в буфере
type Consumer struct {
	repo      Repo
	batchSize int
	events    []model.ArticleEvent
	mu        sync.Mutex
}

// NewConsumer создаёт Consumer с указанным репозиторием и размером пакета
func NewConsumer(repo Repo, batchSize int) *Consumer {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Consumer{repo: repo, batchSize: batchSize, events: make([]model.ArticleEvent, 0, batchSize)}
}

// HandleMessage разбирает событие и добавляет его в буфер; при заполнении буфера пакет уходит в ClickHouse
func (c *Consumer) HandleMessage(ctx context.Context, data []byte) error {
	var e model.ArticleEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	if e.Action == "" {
		return fmt.Errorf("event without action: %s", data)
	}
	slog.Debug("event received", "action", e.Action, "article_id", e.ArticleID)

	c.mu.Lock()
	c.events = append(c.events, e)
	if len(c.events) < c.batchSize {
		c.mu.Unlock()
		return nil
	}
	batch := c.drainLocked()
	c.mu.Unlock()
	return c.repo.BatchInsertLogs(ctx, batch)
}

// Flush отправляет все накопленные события, если они есть
func (c *Consumer) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	return c.repo.BatchInsertLogs(ctx, batch)
}

// Run периодически сбрасывает буфер, чтобы редкие события не залеживались до заполнения пакета.
// Возвращается после отмены ctx
func (c *Consumer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				slog.Error("periodic flush failed", "error", err)
			}
		}
	}
}

func (c *Consumer) drainLocked() []model.ArticleEvent {
	if len(c.events) == 0 {
		return nil
	}
	batch := make([]model.ArticleEvent, len(c.events))
	copy(batch, c.events)
	c.events = c.events[:0]
	return batch
}
