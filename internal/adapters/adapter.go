// Package adapters defines the warehouse client interface and the
// registry of transports that implement it.
//
// Clients are thin: they execute a statement or a query and report the
// warehouse's error unchanged. Statements are never retried; only
// connection establishment goes through ExecuteWithRetry.
package adapters

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/apache/arrow/go/v14/arrow"

	"github.com/canonica-labs/rhive/internal/errors"
)

// Client executes SQL against a Hive-like warehouse.
type Client interface {
	// Name returns the transport name.
	Name() string

	// Exec runs a DDL/DML statement.
	Exec(ctx context.Context, stmt string) error

	// Query runs a statement that returns rows.
	// The caller releases the returned record.
	Query(ctx context.Context, stmt string) (arrow.Record, error)

	// Ping establishes the session if needed and checks it is usable.
	Ping(ctx context.Context) error

	// Close releases the session. Close is idempotent.
	Close() error
}

// ConnectionOptions carries everything a transport needs to open a session.
type ConnectionOptions struct {
	// Transport selects the registered factory.
	Transport string

	// Host is the warehouse hostname.
	Host string

	// Port is the warehouse port.
	Port int

	// Username is the session user.
	Username string

	// Password is used by LDAP and custom auth.
	Password string

	// Database is the default database.
	Database string

	// Auth is the HiveServer2 auth mode: NONE, NOSASL, KERBEROS or LDAP.
	Auth string

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// QueryTimeout bounds each statement. Zero means no limit.
	QueryTimeout time.Duration

	// FetchSize is the number of rows fetched per round trip.
	FetchSize int

	// Catalog and Schema are used by the trino transport.
	Catalog string
	Schema  string

	// SSL switches the trino transport to https.
	SSL bool

	// Driver and DSN configure the generic database/sql transport.
	Driver string
	DSN    string
}

// Address returns host:port.
func (o ConnectionOptions) Address() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// Factory opens a client. It must not block on the network; the session
// is established by the first Ping.
type Factory func(ctx context.Context, opts ConnectionOptions) (Client, error)

// Registry maps transport names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// Available returns the registered transport names, sorted.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates a client for opts.Transport.
func (r *Registry) Open(ctx context.Context, opts ConnectionOptions) (Client, error) {
	f, ok := r.factories[opts.Transport]
	if !ok {
		return nil, errors.NewTransportUnavailable(opts.Transport, r.Available())
	}
	return f(ctx, opts)
}

// IsEmpty returns true if no transports are registered.
func (r *Registry) IsEmpty() bool {
	return len(r.factories) == 0
}

// WithTimeout bounds ctx by d when d is positive.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
