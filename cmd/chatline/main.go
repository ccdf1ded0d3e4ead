package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ent0n29/chatline/internal/app"
	"github.com/ent0n29/chatline/internal/config"
	"github.com/ent0n29/chatline/internal/observability"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrMissingCredential) {
			log.Fatalf("config error: %v (set it in the environment or use COMPLETION_PROVIDER=mock)", err)
		}
		log.Fatalf("config error: %v", err)
	}

	logger, logCloser, err := observability.NewLogger(observability.LogConfig{
		File:       cfg.LogFile,
		Level:      cfg.LogLevel,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logCloser.Close()

	ctx := context.Background()
	shutdownTracing, err := observability.InitTracing(ctx, "chatline", version, cfg.TraceFile)
	if err != nil {
		log.Fatalf("tracing init failed: %v", err)
	}

	built, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger.Info("chatline starting",
		"version", version,
		"provider", built.Provider,
		"archive", built.Archive.Mode(),
		"max_messages", cfg.HistoryMaxMessages,
		"max_sessions", cfg.HistoryMaxSessions,
		"eviction_key", string(cfg.HistoryEvictionKey))

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	// Archive writes come from eviction hooks, so drain them after the server stops.
	if err := built.Cleanup(); err != nil {
		logger.Error("cleanup failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("trace flush failed", "error", err)
	}

	logger.Info("shutdown complete")
}
