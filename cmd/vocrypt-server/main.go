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

	"github.com/joho/godotenv"

	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/api"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/bus"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/config"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/database"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/geo"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/ledger"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/storage"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/storage/memory"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/storage/postgres"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/storage/sqlite"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Convenience for local dev: load .env if present (does not override existing env vars).
	if os.Getenv("ENV") != "production" {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("storage error", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	events := bus.New()
	events.Subscribe(func(evt bus.Event) {
		slog.Info("text event",
			"action", string(evt.Action),
			"identity", evt.Identity,
			"fingerprint", evt.Fingerprint,
		)
	})

	l := ledger.New(store, events, cfg.TextLimit)

	var geoClient api.GeoLookup
	if cfg.GeoEnabled() {
		geoClient = geo.New(cfg.GeoAPIURL, cfg.GeoAPIKey, nil, store)
	} else {
		slog.Info("geolocation disabled: GEO_API_URL not set")
	}

	srv := api.NewServer(cfg, l, geoClient)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr, "driver", cfg.StorageDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}

// openStore opens the configured backend, runs migrations where the backend
// has them, and returns the store plus a cleanup func for the connection.
func openStore(ctx context.Context, cfg config.Config) (storage.Store, func(), error) {
	switch cfg.StorageDriver {
	case "postgres":
		dbURL, err := cfg.PostgresURL()
		if err != nil {
			return nil, nil, err
		}
		conn, err := database.OpenPostgres(ctx, dbURL)
		if err != nil {
			return nil, nil, err
		}
		if err := migrate(ctx, conn, database.DriverPostgres); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return postgres.New(conn.DB()), func() { _ = conn.Close() }, nil

	case "sqlite":
		conn, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := migrate(ctx, conn, database.DriverSQLite); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return sqlite.New(conn.DB()), func() { _ = conn.Close() }, nil

	case "memory":
		slog.Warn("using in-memory storage: data is lost on restart")
		return memory.New(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func migrate(ctx context.Context, conn *database.Connection, driver database.Driver) error {
	applied, err := database.NewMigrator(conn, driver).Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		slog.Info("migrations applied", "count", len(applied))
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
