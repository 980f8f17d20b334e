package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-deposit/pkg/simpledeposit/api"
	"github.com/tendant/simple-deposit/pkg/simpledeposit/config"
)

func main() {
	// Load configuration from environment
	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger()

	// Build service from configuration
	svc, err := cfg.BuildService()
	if err != nil {
		logger.Error("Failed to build service", "error", err)
		os.Exit(1)
	}

	var tokenAuth *jwtauth.JWTAuth
	if cfg.JWTSecret != "" {
		tokenAuth = jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)
	} else {
		logger.Warn("JWT_SECRET not set, using header-based identities")
	}

	server := api.NewServer(svc, tokenAuth)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: server.Routes(),
	}

	// Background reconciliation against the archive
	reconcileCtx, stopReconcile := context.WithCancel(context.Background())
	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		api.RunReconcileLoop(reconcileCtx, svc, cfg.PollInterval, logger)
	}()

	go func() {
		logger.Info("Simple Deposit Server starting",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"database", cfg.DatabaseType,
			"archive", cfg.ArchiveType,
			"poll_interval", cfg.PollInterval)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	stopReconcile()
	<-reconcileDone

	// Let in-flight event listeners finish before exiting
	if err := svc.Dispatcher().Drain(ctx); err != nil {
		logger.Warn("Event dispatcher drain timed out", "error", err)
	}
	svc.Dispatcher().Close()

	logger.Info("Server exiting")
}
