// Package hiveserver2 provides the HiveServer2 Thrift transport.
//
// Hive, Spark Thrift Server and Kyuubi all speak this protocol. The
// session is opened lazily by the first Ping and each statement runs on
// its own cursor.
package hiveserver2

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/beltran/gohive"
	"go.uber.org/zap"

	"github.com/canonica-labs/rhive/internal/adapters"
	"github.com/canonica-labs/rhive/internal/frame"
)

// Name is the transport name this client registers under.
const Name = "hiveserver2"

// Auth modes understood by the transport.
var authModes = map[string]bool{
	"NONE":     true,
	"NOSASL":   true,
	"KERBEROS": true,
	"LDAP":     true,
	"CUSTOM":   true,
}

// sessionConf keeps result column names unqualified.
var sessionConf = map[string]string{
	"hive.resultset.use.unique.column.names": "false",
}

// Client is a HiveServer2 session.
type Client struct {
	mu     sync.Mutex
	conn   *gohive.Connection
	opts   adapters.ConnectionOptions
	logger *zap.Logger
	closed bool
}

// New creates a client without touching the network.
func New(opts adapters.ConnectionOptions, logger *zap.Logger) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("hiveserver2: host is not configured")
	}
	if opts.Port <= 0 {
		opts.Port = 10000
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	opts.Auth = strings.ToUpper(opts.Auth)
	if opts.Auth == "" {
		opts.Auth = "NONE"
	}
	if !authModes[opts.Auth] {
		return nil, fmt.Errorf("hiveserver2: unsupported auth mode %q", opts.Auth)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.FetchSize <= 0 {
		opts.FetchSize = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{opts: opts, logger: logger}, nil
}

// Factory adapts New to adapters.Factory.
func Factory(logger *zap.Logger) adapters.Factory {
	return func(_ context.Context, opts adapters.ConnectionOptions) (adapters.Client, error) {
		return New(opts, logger)
	}
}

// Name returns the transport name.
func (c *Client) Name() string {
	return Name
}

func (c *Client) configuration() *gohive.ConnectConfiguration {
	conf := gohive.NewConnectConfiguration()
	conf.Username = c.opts.Username
	conf.Password = c.opts.Password
	conf.Database = c.opts.Database
	conf.FetchSize = int64(c.opts.FetchSize)
	conf.HiveConfiguration = sessionConf
	if c.opts.Auth == "KERBEROS" {
		conf.Service = "hive"
	}
	return conf
}

// session returns the open connection, dialing it if needed.
func (c *Client) session(ctx context.Context) (*gohive.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("hiveserver2: client is closed")
	}
	if c.conn != nil {
		return c.conn, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	type dialResult struct {
		conn *gohive.Connection
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		conn, err := gohive.Connect(c.opts.Host, c.opts.Port, c.opts.Auth, c.configuration())
		done <- dialResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		// Close a connection that arrives after we gave up on it.
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("hiveserver2: connect to %s: %w", c.opts.Address(), ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("hiveserver2: connect to %s: %w", c.opts.Address(), r.err)
		}
		c.conn = r.conn
		c.logger.Debug("hiveserver2 session opened",
			zap.String("address", c.opts.Address()),
			zap.String("database", c.opts.Database),
			zap.String("auth", c.opts.Auth),
		)
		return c.conn, nil
	}
}

// Exec runs a statement and waits for it to finish.
func (c *Client) Exec(ctx context.Context, stmt string) error {
	conn, err := c.session(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := adapters.WithTimeout(ctx, c.opts.QueryTimeout)
	defer cancel()

	cursor := conn.Cursor()
	defer cursor.Close()

	cursor.Exec(ctx, stmt)
	if cursor.Err != nil {
		return cursor.Err
	}
	return nil
}

// Query runs a statement and collects every row into a record.
func (c *Client) Query(ctx context.Context, stmt string) (arrow.Record, error) {
	conn, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := adapters.WithTimeout(ctx, c.opts.QueryTimeout)
	defer cancel()

	cursor := conn.Cursor()
	defer cursor.Close()

	cursor.Exec(ctx, stmt)
	if cursor.Err != nil {
		return nil, cursor.Err
	}

	desc := cursor.Description()
	if cursor.Err != nil {
		return nil, cursor.Err
	}
	names := make([]string, len(desc))
	types := make([]string, len(desc))
	for i, d := range desc {
		names[i] = d[0]
		if len(d) > 1 {
			types[i] = d[1]
		}
	}

	var rows []map[string]any
	for cursor.HasMore(ctx) {
		row := cursor.RowMap(ctx)
		if cursor.Err != nil {
			return nil, cursor.Err
		}
		rows = append(rows, row)
	}
	if cursor.Err != nil {
		return nil, cursor.Err
	}

	return frame.FromMaps(frame.SpecsFromTypeNames(names, types), rows)
}

// Ping opens the session if needed and runs a trivial query.
func (c *Client) Ping(ctx context.Context) error {
	rec, err := c.Query(ctx, "SELECT 1")
	if err != nil {
		return err
	}
	rec.Release()
	return nil
}

// Close releases the session. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn != nil {
		conn := c.conn
		c.conn = nil
		return conn.Close()
	}
	return nil
}
