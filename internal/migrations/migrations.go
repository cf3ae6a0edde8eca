// Package migrations applies the embedded Postgres schema.
package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/*.sql
var files embed.FS

const (
	migrationTable = "schema_migrations"
	downMarker     = "-- +migrate Down"
)

// Apply executes every embedded migration at most once, in file name order.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("pool is nil")
	}

	names, err := fs.Glob(files, "sql/*.sql")
	if err != nil {
		return fmt.Errorf("fs.Glob: %w", err)
	}
	sort.Strings(names)

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    name       TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, migrationTable)
	if _, err := pool.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range names {
		content, err := fs.ReadFile(files, name)
		if err != nil {
			return fmt.Errorf("fs.ReadFile[%s]: %w", name, err)
		}

		if err := applyOne(ctx, pool, name, UpSection(string(content))); err != nil {
			return fmt.Errorf("applyOne[%s]: %w", name, err)
		}
	}

	return nil
}

func applyOne(ctx context.Context, pool *pgxpool.Pool, name, upSQL string) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		// serialize concurrent appliers, i.e. parallel test suites on one database
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", migrationTable); err != nil {
			return fmt.Errorf("pg_advisory_xact_lock: %w", err)
		}

		var applied bool
		err := tx.QueryRow(ctx,
			fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE name = $1)", migrationTable), name).
			Scan(&applied)
		if err != nil {
			return fmt.Errorf("check applied: %w", err)
		}
		if applied || strings.TrimSpace(upSQL) == "" {
			return nil
		}

		if _, err := tx.Exec(ctx, upSQL); err != nil {
			return fmt.Errorf("exec: %w", err)
		}

		if _, err := tx.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (name) VALUES ($1)", migrationTable), name); err != nil {
			return fmt.Errorf("record: %w", err)
		}

		return nil
	})
}

// UpSection returns the part of a migration before the down marker.
func UpSection(content string) string {
	if idx := strings.Index(content, downMarker); idx >= 0 {
		return content[:idx]
	}
	return content
}
