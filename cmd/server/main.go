package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hoophead/bsky-stream/internal/bluesky"
	"github.com/hoophead/bsky-stream/internal/config"
	"github.com/hoophead/bsky-stream/internal/domain"
	"github.com/hoophead/bsky-stream/internal/httpserver"
	"github.com/hoophead/bsky-stream/internal/reporters"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("BSKY_STREAM_CONFIG"), "path to YAML config file (optional)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store := reporters.NewStore(cfg.ReportersPath)
	list, err := store.Load()
	if err != nil {
		return fmt.Errorf("load reporters: %w", err)
	}
	logger.Info("loaded reporters", "count", len(list), "path", cfg.ReportersPath)

	// Without an explicit default list, every reporter in the persisted
	// file is queried.
	if len(cfg.DefaultReporters) == 0 {
		cfg.DefaultReporters = reporters.Handles(list)
	}

	client := bluesky.NewClient(cfg.AppViewURL, cfg.Token)
	stream := domain.NewStreamService(client, logger, cfg.MaxInFlight)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	server := httpserver.NewServer(cfg, stream, reporters.DIDIndex(list), logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
			cancel()
		}
	}()

	logger.Info("server started", "port", cfg.Port)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
