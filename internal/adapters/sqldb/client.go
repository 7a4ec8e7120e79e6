// Package sqldb provides warehouse transports over database/sql.
//
// Presets exist for Trino (through its Hive connector) and embedded
// DuckDB; any other registered driver can be used with an explicit DSN.
// Neither preset understands STORED AS or LOAD DATA, so these transports
// are used for reading and for local development.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/apache/arrow/go/v14/arrow"

	"github.com/canonica-labs/rhive/internal/adapters"
	"github.com/canonica-labs/rhive/internal/frame"

	_ "github.com/lib/pq"                        // postgres driver
	_ "github.com/marcboeker/go-duckdb"          // DuckDB driver
	_ "github.com/trinodb/trino-go-client/trino" // Trino driver
	_ "modernc.org/sqlite"                       // sqlite driver
)

// Transport names.
const (
	Trino   = "trino"
	DuckDB  = "duckdb"
	Generic = "sql"
)

// PoolConfig tunes the database/sql pool.
type PoolConfig struct {
	// MaxOpenConns is the maximum number of open connections. Default: 4.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections. Default: 2.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection. Default: 5 minutes.
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime is the maximum idle time of a connection. Default: 1 minute.
	ConnMaxIdleTime time.Duration
}

func (p PoolConfig) withDefaults() PoolConfig {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = 4
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = 2
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = 5 * time.Minute
	}
	if p.ConnMaxIdleTime <= 0 {
		p.ConnMaxIdleTime = time.Minute
	}
	return p
}

// Client runs statements through a *sql.DB.
type Client struct {
	mu           sync.RWMutex
	name         string
	db           *sql.DB
	queryTimeout time.Duration
	closed       bool
}

// NewWithDB wraps an existing pool.
func NewWithDB(name string, db *sql.DB, queryTimeout time.Duration) *Client {
	return &Client{
		name:         name,
		db:           db,
		queryTimeout: queryTimeout,
	}
}

// Open opens a pool for driver/dsn. No connection is made until Ping.
func Open(name, driver, dsn string, queryTimeout time.Duration, pool PoolConfig) (*Client, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open %s: %w", name, driver, err)
	}

	pool = pool.withDefaults()
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	return NewWithDB(name, db, queryTimeout), nil
}

// TrinoDSN builds http[s]://user@host:port?catalog=X&schema=Y.
func TrinoDSN(opts adapters.ConnectionOptions) string {
	scheme := "http"
	if opts.SSL {
		scheme = "https"
	}
	user := opts.Username
	if user == "" {
		user = "rhive"
	}
	catalog := opts.Catalog
	if catalog == "" {
		catalog = "hive"
	}
	schema := opts.Schema
	if schema == "" {
		schema = opts.Database
	}
	if schema == "" {
		schema = "default"
	}

	q := url.Values{}
	q.Set("catalog", catalog)
	q.Set("schema", schema)
	u := url.URL{
		Scheme:   scheme,
		User:     url.User(user),
		Host:     opts.Address(),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// TrinoFactory opens the trino preset.
func TrinoFactory(_ context.Context, opts adapters.ConnectionOptions) (adapters.Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("%s: host is not configured", Trino)
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	return Open(Trino, "trino", TrinoDSN(opts), opts.QueryTimeout, PoolConfig{})
}

// DuckDBFactory opens the embedded duckdb preset. An empty DSN is an
// in-memory database.
func DuckDBFactory(_ context.Context, opts adapters.ConnectionOptions) (adapters.Client, error) {
	dsn := opts.DSN
	if dsn == "" {
		dsn = ":memory:"
	}
	// One connection keeps an in-memory database visible to every statement.
	return Open(DuckDB, "duckdb", dsn, opts.QueryTimeout, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})
}

// GenericFactory opens opts.Driver with opts.DSN.
func GenericFactory(_ context.Context, opts adapters.ConnectionOptions) (adapters.Client, error) {
	if opts.Driver == "" || opts.DSN == "" {
		return nil, fmt.Errorf("%s: driver and dsn are required", Generic)
	}
	return Open(Generic, opts.Driver, opts.DSN, opts.QueryTimeout, PoolConfig{})
}

// Name returns the transport name.
func (c *Client) Name() string {
	return c.name
}

func (c *Client) pool() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.db == nil {
		return nil, fmt.Errorf("%s: connection is closed", c.name)
	}
	return c.db, nil
}

// Exec runs a statement.
func (c *Client) Exec(ctx context.Context, stmt string) error {
	db, err := c.pool()
	if err != nil {
		return err
	}
	ctx, cancel := adapters.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return nil
}

// Query runs a statement and returns its rows as a record.
func (c *Client) Query(ctx context.Context, stmt string) (arrow.Record, error) {
	db, err := c.pool()
	if err != nil {
		return nil, err
	}
	ctx, cancel := adapters.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	defer rows.Close()

	rec, err := frame.FromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return rec, nil
}

// Ping checks the pool can reach the database.
func (c *Client) Ping(ctx context.Context) error {
	db, err := c.pool()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close releases the pool. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
