// Package app implements the fansite command line: serve, sync, export,
// migrate and hash-token.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/levifans/backend/internal/auth"
	"github.com/levifans/backend/internal/config"
	"github.com/levifans/backend/internal/db"
	"github.com/levifans/backend/internal/httpserver"
	"github.com/levifans/backend/internal/logging"
	"github.com/levifans/backend/internal/storage"
	"github.com/levifans/backend/internal/syncer"
)

const usage = "expected command: serve, sync, export, migrate, or hash-token"

// Run bootstraps the fan-site backend.
func Run(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout)
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	if args[0] == "hash-token" {
		return hashToken(args[1:], stdout)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	ctx = logging.WithLogger(ctx, logger)

	switch args[0] {
	case "serve":
		return serve(ctx, cfg, logger)
	case "sync":
		return runSync(ctx, cfg, args[1:], stdout)
	case "export":
		return runExport(ctx, cfg, args[1:], stdout)
	case "migrate":
		return runMigrations(ctx, cfg, args[1:], stdout)
	default:
		return fmt.Errorf("unknown command %q: %s", args[0], usage)
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	upstream, err := newUpstream(ctx, cfg)
	if err != nil {
		return err
	}
	svc, err := buildServices(cfg, be, upstream)
	if err != nil {
		return err
	}
	deps, err := buildDependencies(cfg, be, svc)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.AppPort, newHandler(logger, deps))
	logger.Info("starting http server",
		"port", cfg.AppPort,
		"store", cfg.Store,
		"content_mode", cfg.ContentMode,
		"admin_enabled", deps.Tokens != nil,
	)
	return srv.Run(ctx)
}

func runSync(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	deep := fs.Bool("deep", false, "walk the full page budget instead of the recent horizon")
	if err := fs.Parse(args); err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	upstream, err := newUpstream(ctx, cfg)
	if err != nil {
		return err
	}
	svc, err := buildServices(cfg, be, upstream)
	if err != nil {
		return err
	}

	if err := svc.syncer.Resync(ctx, *deep); err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			return fmt.Errorf("sync skipped: %w", err)
		}
		return err
	}
	fmt.Fprintf(stdout, "sync completed (deep=%t)\n", *deep)
	return nil
}

func runExport(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	key := fs.String("key", storage.DefaultSnapshotKey, "object key for the snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewS3Storage(ctx, storage.Config{
		Bucket:        cfg.ObjectStoreBucket,
		Endpoint:      cfg.ObjectStoreEndpoint,
		Region:        cfg.ObjectStoreRegion,
		PublicBaseURL: cfg.ObjectStorePublicBaseURL,
	})
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	upstream, err := newUpstream(ctx, cfg)
	if err != nil {
		return err
	}
	svc, err := buildServices(cfg, be, upstream)
	if err != nil {
		return err
	}

	location, err := exportSnapshot(ctx, svc, store, *key)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported snapshot to %s\n", location)
	return nil
}

func exportSnapshot(ctx context.Context, svc services, saver storage.Saver, key string) (string, error) {
	latest, err := svc.content.Latest(ctx)
	if err != nil {
		return "", fmt.Errorf("load latest: %w", err)
	}
	featured, err := svc.content.Featured(ctx)
	if err != nil {
		return "", fmt.Errorf("load featured: %w", err)
	}

	return storage.ExportSnapshot(ctx, saver, key, storage.Snapshot{
		GeneratedAt: time.Now().UTC(),
		Latest:      latest,
		Featured:    featured,
	})
}

func runMigrations(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}
	if command != "up" && command != "status" {
		return fmt.Errorf("unknown migrate command %q", command)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	dir := os.DirFS(cfg.MigrationDir)

	if command == "status" {
		status, err := db.Status(ctx, pool, dir)
		if err != nil {
			return err
		}
		for _, m := range status {
			mark := " "
			if m.Applied {
				mark = "x"
			}
			fmt.Fprintf(stdout, "[%s] %s\n", mark, m.Version)
		}
		return nil
	}

	applied, err := db.Migrate(ctx, pool, dir)
	for _, version := range applied {
		fmt.Fprintf(stdout, "applied migration %s\n", version)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(stdout, "no migrations to apply")
	}
	return nil
}

func hashToken(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: hash-token <token>")
	}
	hash, err := auth.HashToken(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}
