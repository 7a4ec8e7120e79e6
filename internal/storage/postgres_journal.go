package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/canonica-labs/rhive/internal/observability"
)

// PostgresConfig configures the PostgreSQL journal.
type PostgresConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxOpenConns is the maximum number of open connections. Default: 4.
	MaxOpenConns int

	// ConnMaxLifetime is the maximum connection lifetime. Default: 5 minutes.
	ConnMaxLifetime time.Duration
}

// PostgresJournal implements Journal using PostgreSQL.
type PostgresJournal struct {
	db *sql.DB
}

// NewPostgresJournal wraps an open database.
func NewPostgresJournal(db *sql.DB) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// OpenPostgresJournal opens the database, applies migrations and returns
// the journal.
func OpenPostgresJournal(ctx context.Context, cfg PostgresConfig) (*PostgresJournal, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage: journal dsn is empty")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("storage: open journal: %w", err)
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	j := NewPostgresJournal(db)
	if err := j.CheckConnectivity(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := NewMigrationRunner(db).Run(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the database.
func (j *PostgresJournal) Close() error {
	return j.db.Close()
}

// Record inserts one entry.
func (j *PostgresJournal) Record(ctx context.Context, entry observability.OperationEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO operation_journal (
			operation_id, kind, table_name, mode, action, strategy,
			rows_written, statements, duration_ms, outcome, error_message, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.OperationID,
		entry.Kind,
		nullableString(entry.Table),
		nullableString(entry.Mode),
		nullableString(entry.Action),
		nullableString(entry.Strategy),
		entry.Rows,
		entry.Statements,
		entry.Duration.Milliseconds(),
		entry.Outcome,
		nullableString(entry.Error),
		entry.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: failed to record operation: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (j *PostgresJournal) List(ctx context.Context, limit int) ([]observability.OperationEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT operation_id, kind, table_name, mode, action, strategy,
		        rows_written, statements, duration_ms, outcome, error_message, started_at
		 FROM operation_journal
		 ORDER BY started_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to list operations: %w", err)
	}
	defer rows.Close()

	entries := []observability.OperationEntry{}
	for rows.Next() {
		var (
			e                                   observability.OperationEntry
			table, mode, action, strategy, emsg sql.NullString
			durationMs                          int64
		)
		if err := rows.Scan(&e.OperationID, &e.Kind, &table, &mode, &action, &strategy,
			&e.Rows, &e.Statements, &durationMs, &e.Outcome, &emsg, &e.StartedAt); err != nil {
			return nil, fmt.Errorf("storage: failed to scan operation: %w", err)
		}
		e.Table = table.String
		e.Mode = mode.String
		e.Action = action.String
		e.Strategy = strategy.String
		e.Error = emsg.String
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: error iterating operations: %w", err)
	}
	return entries, nil
}

// CheckConnectivity pings the database.
func (j *PostgresJournal) CheckConnectivity(ctx context.Context) error {
	if err := j.db.PingContext(ctx); err != nil {
		return fmt.Errorf("storage: journal database unreachable: %w", err)
	}
	return nil
}

// nullableString converts empty strings to nil for SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
