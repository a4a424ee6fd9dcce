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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ruet-connect/connect/services/connect/config"
	"github.com/ruet-connect/connect/services/connect/internal/app"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("connect-server %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
		os.Exit(0)
	}

	cfg := config.Load()
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Seed the demo account so visitors can sign in.
	if cfg.Demo.Enabled {
		if snap, err := a.ProvisionDemo(ctx); err != nil {
			logger.Warn("demo account skipped", "error", err)
		} else {
			logger.Info("demo account ready", "short_id", snap.User.ShortID)
		}
	}

	// Profiles left behind by an interrupted account deletion, and spent
	// one-time tokens.
	if n, err := a.Accounts.PurgeOrphanedProfiles(ctx); err != nil {
		logger.Warn("orphan purge failed", "error", err)
	} else if n > 0 {
		logger.Info("purged orphaned profiles", "count", n)
	}
	if n, err := a.PurgeExpiredTokens(ctx); err != nil {
		logger.Warn("token purge failed", "error", err)
	} else if n > 0 {
		logger.Info("purged expired tokens", "count", n)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	a.Handler().Mount(r)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("connect server starting", "addr", addr, "env", cfg.Server.Env, "backend", cfg.Backend)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
