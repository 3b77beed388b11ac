package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migration is one .sql file from the migrations directory.
type Migration struct {
	Version string
	Applied bool
}

// Migrate applies every pending *.sql file in dir, in lexical order, each in its
// own transaction. It returns the versions it applied.
func Migrate(ctx context.Context, pool Pool, dir fs.FS) ([]string, error) {
	status, err := Status(ctx, pool, dir)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range status {
		if m.Applied {
			continue
		}
		contents, err := fs.ReadFile(dir, m.Version)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", m.Version, err)
		}

		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(contents)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}

// Status lists every migration file with whether it has been applied.
func Status(ctx context.Context, pool Pool, dir fs.FS) ([]Migration, error) {
	files, err := migrationFiles(dir)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan schema_migrations: %w", err)
	}

	return planMigrations(files, applied), nil
}

func migrationFiles(dir fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(dir, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		files = append(files, entry.Name())
	}
	if len(files) == 0 {
		return nil, errors.New("no migrations found")
	}
	sort.Strings(files)
	return files, nil
}

func planMigrations(files, applied []string) []Migration {
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[strings.TrimSpace(v)] = true
	}

	out := make([]Migration, 0, len(files))
	for _, f := range files {
		out = append(out, Migration{Version: f, Applied: done[f]})
	}
	return out
}
