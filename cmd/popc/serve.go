package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/sufield/popc/internal/adapters/inbound/httpapi"
	"github.com/sufield/popc/internal/app"
	"github.com/sufield/popc/internal/config"
	"github.com/sufield/popc/internal/logging"
)

func serveCommand(args []string, out io.Writer) error {
	fs := newFlagSet("serve", out)
	configPath := fs.String("config", os.Getenv("POPC_CONFIG"), "Path to popc.yaml; environment only when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	// Create context that listens for interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// serve bootstraps the engine and blocks until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	application, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing store")
		}
	}()

	httpLog := logging.Component(logger, "http")
	gate := httpapi.NewGate(cfg.Auth.Keys, application.Metrics.RateLimited, httpLog)
	if gate.Open() {
		logger.Warn().Msg("no API keys configured, every route is open")
	}

	handler := httpapi.NewHandler(httpapi.Options{
		Engine:       application.Engine,
		Gate:         gate,
		Usage:        application.Store,
		Metrics:      application.Metrics,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Logger:       httpLog,
	})

	server, err := httpapi.NewServer(ctx, cfg.HTTP, handler, httpLog)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return server.ListenAndServe(ctx)
}
