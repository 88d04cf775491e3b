package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"codeberg.org/tinyurl/server/internal/config"
	"codeberg.org/tinyurl/server/internal/logger"
)

// @title TinyURL API
// @version 1.0
// @description URL shortener with ownership verification over Kafka and daily click analytics
// @description
// @description Features:
// @description - Short codes derived from database sequence ids
// @description - Private links visible to their owner only
// @description - Exactly-once daily click aggregation
// @description - Live click feed over WebSockets

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token for authenticated requests. Format: Bearer {token}

// @securityDefinitions.apikey AdminKeyAuth
// @in header
// @name X-Admin-Key

func main() {
	// load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	logger.SetDefault(logger.New(cfg.Environment, cfg.LogLevel))
	logger.Info("starting tinyurl server", "environment", cfg.Environment, "bus", cfg.Bus.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := NewServer(ctx, cfg)
	if err != nil {
		logger.FatalErr(err, "failed to create server")
	}

	if err := srv.Start(ctx); err != nil {
		srv.Close()
		logger.FatalErr(err, "failed to start background services")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// start server in goroutine
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalErr(err, "server failed to start")
		}
	}()

	// wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorErr(err, "server forced to shutdown")
	}

	srv.Close()

	logger.Info("server stopped")
}
