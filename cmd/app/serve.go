package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	transporthttp "ArticlesCatalog/internal/transport/http"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Wait for Postgres, apply migrations and serve the REST API.

Redis and NATS are optional: an empty REDIS_ADDR or NATS_URL disables the cache or event publishing.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	h := transporthttp.NewHandler(a.service, a.repo, cfg.HTTP.MaxUploadSize, cfg.Security.Debug)
	router := transporthttp.NewRouter(h, transporthttp.RouterConfig{
		AllowedHosts: cfg.Security.AllowedHosts,
		CORSOrigins:  cfg.Security.CORSAllowedOrigins,
		Debug:        cfg.Security.Debug,
	})
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
		return nil
	case <-quit:
	}

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	slog.Info("server exited properly")
	return nil
}
