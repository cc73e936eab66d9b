// Package main is the entry point for the stock ledger API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockledger/internal/bootstrap"
	"stockledger/internal/domain/auth"
	"stockledger/internal/infrastructure/config"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (default ./config.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting stock ledger server", "version", version, "env", cfg.App.Env)

	rt, err := bootstrap.Open(ctx, cfg, version)
	if err != nil {
		log.Fatalw("failed to assemble ledger", "error", err)
	}

	// --- JWT ---
	var validator middleware.JWTValidator
	if cfg.Auth.JWTSecret != "" {
		validator = auth.NewJWTService(auth.DefaultJWTConfig(cfg.Auth.JWTSecret))
		log.Info("bearer authentication enabled for mutating requests")
	}

	serviceName := ""
	if rt.Telemetry.Enabled() {
		serviceName = cfg.App.Name
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Ledger:           rt.Ledger,
		Logger:           log,
		JWTValidator:     validator,
		IdempotencyStore: rt.Idempotency,
		HealthChecks:     rt.HealthChecks(),
		ServiceName:      serviceName,
		Version:          version,
		Development:      cfg.App.Development(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", server.Addr, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	if err := rt.Close(shutdownCtx); err != nil {
		log.Warnw("failed to release resources", "error", err)
	}

	log.Info("server stopped")
}
