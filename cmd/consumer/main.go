package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/ClickHouse/clickhouse-go"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/clickhouse"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"

	"ArticlesCatalog/internal/config"
	"ArticlesCatalog/internal/consumer"
	"ArticlesCatalog/internal/repository"
	"ArticlesCatalog/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("consumer failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConsumer()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Debug, cfg.Logging.Format)

	// Подключаемся к ClickHouse и применяем миграции
	db, err := sql.Open("clickhouse", cfg.ClickHouseDSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	driver, err := clickhouse.WithInstance(db, &clickhouse.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.MigrationsDir, "clickhouse", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer nc.Close()

	cons := consumer.NewConsumer(repository.NewClickhouseRepo(db), cfg.BatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	flushed := make(chan struct{})
	go func() {
		cons.Run(ctx, cfg.FlushInterval)
		close(flushed)
	}()

	// healthz и readyz
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if !nc.IsConnected() {
			writeStatus(w, http.StatusServiceUnavailable, "nats disconnected")
			return
		}
		if err := db.PingContext(req.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "clickhouse unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	}).Methods(http.MethodGet)
	healthSrv := &http.Server{Addr: ":" + strconv.Itoa(cfg.Port), Handler: r}
	go func() {
		slog.Info("starting health server", "port", cfg.Port)
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server failed", "error", err)
		}
	}()

	sub, err := nc.Subscribe(cfg.NATS.Subject, func(msg *nats.Msg) {
		if err := cons.HandleMessage(context.Background(), msg.Data); err != nil {
			slog.Warn("failed to handle message", "error", err)
		}
	})
	if err != nil {
		return err
	}
	slog.Info("consuming events", "subject", cfg.NATS.Subject, "batch", cfg.BatchSize)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	slog.Info("shutting down consumer")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("health server shutdown failed", "error", err)
	}

	// Отписываемся, останавливаем периодический сброс и сбрасываем остаток
	if err := sub.Unsubscribe(); err != nil {
		slog.Warn("failed to unsubscribe", "error", err)
	}
	cancel()
	<-flushed
	if err := cons.Flush(shutdownCtx); err != nil {
		slog.Error("failed to flush consumer events", "error", err)
	}
	return nil
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
