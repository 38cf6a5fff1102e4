package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
)

const createVersionTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// migration is one numbered schema change with both directions.
type migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// loadMigrations reads NNNNNN_name.up.sql / NNNNNN_name.down.sql pairs from
// fsys, sorted by version. Every version needs both files.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := make(map[string]*migration)
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}

		base := strings.TrimSuffix(e.Name(), ".sql")
		stem, dir, ok := cutLast(base, ".")
		if !ok || (dir != "up" && dir != "down") {
			return nil, fmt.Errorf("migration %s: expected .up.sql or .down.sql", e.Name())
		}
		version, name, ok := strings.Cut(stem, "_")
		if !ok || version == "" || strings.Trim(version, "0123456789") != "" {
			return nil, fmt.Errorf("migration %s: expected NNNNNN_name prefix", e.Name())
		}

		body, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}

		m, exists := byVersion[version]
		if !exists {
			m = &migration{Version: version, Name: name}
			byVersion[version] = m
		} else if m.Name != name {
			return nil, fmt.Errorf("migration %s: name %q conflicts with %q", version, name, m.Name)
		}
		if dir == "up" {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s_%s: both up and down files are required", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}

// planUp returns the migrations not yet applied, oldest first, capped at
// steps when steps > 0.
func planUp(all []migration, applied map[string]bool, steps int) []migration {
	var pending []migration
	for _, m := range all {
		if applied[m.Version] {
			continue
		}
		pending = append(pending, m)
		if steps > 0 && len(pending) == steps {
			break
		}
	}
	return pending
}

// planDown returns the applied migrations to roll back, newest first.
// steps <= 0 rolls back one.
func planDown(all []migration, applied map[string]bool, steps int) []migration {
	if steps <= 0 {
		steps = 1
	}
	var rollback []migration
	for i := len(all) - 1; i >= 0 && len(rollback) < steps; i-- {
		if applied[all[i].Version] {
			rollback = append(rollback, all[i])
		}
	}
	return rollback
}

type migrator struct {
	db     *sql.DB
	logger *slog.Logger
}

func (m *migrator) run(ctx context.Context, all []migration, direction string, steps int) error {
	if _, err := m.db.ExecContext(ctx, createVersionTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	switch direction {
	case "up":
		plan := planUp(all, applied, steps)
		if len(plan) == 0 {
			m.logger.Info("schema is up to date")
			return nil
		}
		for _, mig := range plan {
			if err := m.apply(ctx, mig.Up, `INSERT INTO schema_migrations (version) VALUES ($1)`, mig.Version); err != nil {
				return fmt.Errorf("apply %s_%s: %w", mig.Version, mig.Name, err)
			}
			m.logger.Info("applied migration", slog.String("version", mig.Version), slog.String("name", mig.Name))
		}
	case "down":
		for _, mig := range planDown(all, applied, steps) {
			if err := m.apply(ctx, mig.Down, `DELETE FROM schema_migrations WHERE version = $1`, mig.Version); err != nil {
				return fmt.Errorf("roll back %s_%s: %w", mig.Version, mig.Name, err)
			}
			m.logger.Info("rolled back migration", slog.String("version", mig.Version), slog.String("name", mig.Name))
		}
	default:
		return errors.New("direction must be up or down")
	}
	return nil
}

func (m *migrator) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// apply runs a migration body and its bookkeeping statement in one
// transaction.
func (m *migrator) apply(ctx context.Context, body, bookkeeping, version string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return err
	}
	return tx.Commit()
}
