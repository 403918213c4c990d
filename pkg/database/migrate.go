package database

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
)

const migrationSuffix = ".up.sql"

var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"connection timed out",
	"connect: connection",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"dial tcp",
	"EOF",
	"server closed the connection unexpectedly",
	"could not connect",
}

// isConnectionError reports whether err looks like the database went away
// rather than a statement being rejected.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return slices.ContainsFunc(transientMarkers, func(m string) bool {
		return strings.Contains(msg, m)
	})
}

// RunMigrations applies every *.up.sql at the root of migrations, in name
// order, that schema_migrations has not recorded yet. Each file commits
// together with its version row. Connection failures restart the run with
// backoff; statement errors end it at once.
func RunMigrations(ctx context.Context, db DBTX, migrations fs.FS, logger *slog.Logger) error {
	versions, err := upMigrations(migrations)
	if err != nil {
		return err
	}
	m := &migrator{db: db, files: migrations, logger: logger}
	return withRetry(ctx, "migrations", logger, func(ctx context.Context) error {
		if err := m.run(ctx, versions); err != nil {
			if isConnectionError(err) {
				return err
			}
			return permanent(err)
		}
		return nil
	})
}

func upMigrations(migrations fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), migrationSuffix) {
			versions = append(versions, e.Name())
		}
	}
	slices.Sort(versions)
	return versions, nil
}

type migrator struct {
	db     DBTX
	files  fs.FS
	logger *slog.Logger
}

func (m *migrator) run(ctx context.Context, versions []string) error {
	if _, err := m.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, version := range versions {
		var applied bool
		if err := m.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if applied {
			m.logger.DebugContext(ctx, "migration already applied", slog.String("version", version))
			continue
		}
		if err := m.apply(ctx, version); err != nil {
			return err
		}
		m.logger.InfoContext(ctx, "migration applied", slog.String("version", version))
	}
	return nil
}

func (m *migrator) apply(ctx context.Context, version string) error {
	body, err := fs.ReadFile(m.files, version)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", version, err)
	}
	if _, err := tx.Exec(ctx, string(body)); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}
