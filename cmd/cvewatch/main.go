package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/cvewatch/internal/config"
	"github.com/dukerupert/cvewatch/internal/database"
	"github.com/dukerupert/cvewatch/internal/gateway"
	"github.com/dukerupert/cvewatch/internal/logging"
	"github.com/dukerupert/cvewatch/internal/server"
	"github.com/dukerupert/cvewatch/internal/session"
	"github.com/dukerupert/cvewatch/internal/store"
	"github.com/dukerupert/cvewatch/internal/syncer"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sessions := session.NewProvider(store.NewLocalStorage(db))
	gw := gateway.NewClient(cfg.BackendURL, gateway.WithTimeout(cfg.RequestTimeout))
	ctrl := syncer.New(gw, sessions, syncer.Config{
		TimelineDays:    cfg.TimelineDays,
		RefreshInterval: cfg.RefreshInterval,
	}, logger.With("component", "syncer"))

	srv := server.New(db, ctrl, logger)

	// Actions wait for their backend call and the re-sync that follows.
	writeTimeout := 2*cfg.RequestTimeout + 10*time.Second

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.RunFeed(ctx)
	go srv.RateLimiter().RunCleanup(ctx, time.Hour)
	go func() {
		if err := ctrl.Start(ctx); err != nil && !errors.Is(err, syncer.ErrClosed) && !errors.Is(err, context.Canceled) {
			slog.Error("initial load failed", "error", err)
		}
	}()

	go func() {
		slog.Info("cvewatch starting", "addr", "http://localhost:"+cfg.Port, "backend", cfg.BackendURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cancel()
	ctrl.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
