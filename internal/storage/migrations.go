package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/canonica-labs/rhive/migrations"
)

// MigrationRunner applies the embedded journal schema migrations.
type MigrationRunner struct {
	db    *sql.DB
	files fs.FS
}

// NewMigrationRunner creates a runner over the embedded migrations.
func NewMigrationRunner(db *sql.DB) *MigrationRunner {
	return &MigrationRunner{db: db, files: migrations.FS}
}

// Run applies every pending migration in version order, each in its own
// transaction.
func (r *MigrationRunner) Run(ctx context.Context) error {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("storage: failed to create migrations table: %w", err)
	}

	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("storage: failed to read applied migrations: %w", err)
	}

	pending, err := r.migrationFiles()
	if err != nil {
		return fmt.Errorf("storage: failed to read migration files: %w", err)
	}

	for _, m := range pending {
		if applied[m.version] {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return fmt.Errorf("storage: migration %s failed: %w", m.name, err)
		}
	}
	return nil
}

type migration struct {
	version string
	name    string
	content []byte
}

func (r *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// migrationFiles returns the *.up.sql files, sorted by the numeric prefix
// of "000001_name.up.sql".
func (r *MigrationRunner) migrationFiles() ([]migration, error) {
	entries, err := fs.ReadDir(r.files, ".")
	if err != nil {
		return nil, err
	}

	var list []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		content, err := fs.ReadFile(r.files, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		list = append(list, migration{
			version: version,
			name:    strings.TrimSuffix(name, ".up.sql"),
			content: content,
		})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].version < list[j].version
	})
	return list, nil
}

func (r *MigrationRunner) apply(ctx context.Context, m migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(m.content)); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`,
		m.version, time.Now(),
	); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}
