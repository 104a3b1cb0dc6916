package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/databuddy/hrimport/internal/config"
	"github.com/databuddy/hrimport/internal/job"
	"github.com/databuddy/hrimport/internal/logging"
	"github.com/databuddy/hrimport/internal/storage"
	"github.com/databuddy/hrimport/internal/store"
	"github.com/databuddy/hrimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"storage_root", cfg.Storage.Root,
		"upload_max_bytes", cfg.Upload.MaxFileSize,
		"upload_max_rows", cfg.Upload.MaxRows,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	if err := storage.EnsureLayout(cfg.Storage.Root); err != nil {
		slog.Error("failed to prepare storage root", "error", err)
		os.Exit(1)
	}

	// Open the metadata database next to the job directories.
	st, err := store.Open(filepath.Join(cfg.Storage.Root, "databuddy.db"))
	if err != nil {
		slog.Error("failed to open metadata store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	slot := job.NewSlot()
	service, err := job.NewService(cfg.Storage.Root, job.Limits{
		MaxRows:  cfg.Upload.MaxRows,
		MaxBytes: cfg.Upload.MaxFileSize,
	}, st, slot)
	if err != nil {
		slog.Error("failed to create job service", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
