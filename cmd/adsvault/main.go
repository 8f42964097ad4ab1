// Command adsvault is the ads.txt / sellers.json cache and seller lookup
// engine.
//
// Usage:
//
//	adsvault -config adsvault.yaml              # run with config file
//	adsvault -db adsvault.db                    # run with defaults
//	adsvault -db adsvault.db -lookup example.com/491787  # lookup and exit
//	adsvault -db adsvault.db -stats             # show stats and exit
//	adsvault -db adsvault.db -backfill          # rebuild the index and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "modernc.org/sqlite"

	"github.com/sellerlens/adsvault/vault"
)

func main() {
	configPath := flag.String("config", "", "path to adsvault.yaml config file")
	dbPath := flag.String("db", "", "path to SQLite database")
	lookup := flag.String("lookup", "", "seller lookup as domain/sellerID (exit after result)")
	showStats := flag.Bool("stats", false, "show stats and exit")
	backfill := flag.Bool("backfill", false, "rebuild the seller index and exit")
	addr := flag.String("addr", ":8374", "ops HTTP listen address (daemon mode)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dbPath, *lookup, *showStats, *backfill, *addr); err != nil {
		logger.Error("adsvault: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath, lookup string, showStats, backfill bool, addr string) error {
	cfg, err := vault.LoadConfigFile(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Storage.SQLitePath = dbPath
	}

	v, err := vault.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer v.Close()

	// One-shot: seller lookup.
	if lookup != "" {
		domain, sellerID, ok := strings.Cut(lookup, "/")
		if !ok || domain == "" || sellerID == "" {
			return fmt.Errorf("lookup: expected domain/sellerID, got %q", lookup)
		}
		s, err := v.FindSeller(ctx, domain, sellerID)
		if err != nil {
			return fmt.Errorf("lookup: %w", err)
		}
		return printJSON(s)
	}

	// One-shot: stats.
	if showStats {
		stats, err := v.Stats(ctx)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		return printJSON(stats)
	}

	// One-shot: backfill.
	if backfill {
		prog, err := v.Backfill(ctx)
		if err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
		return printJSON(prog)
	}

	// Daemon mode: serve the ops surface until signalled.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	v.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("adsvault: serving", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("adsvault: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
