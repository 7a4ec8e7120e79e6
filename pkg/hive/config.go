package hive

import (
	"fmt"
	"strings"
	"time"

	"github.com/canonica-labs/rhive/internal/adapters"
	"github.com/canonica-labs/rhive/internal/errors"
)

// Config is the connection configuration of a Writer or Reader. It holds
// no network state and is copied into each handle.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string

	// Auth is NONE, NOSASL, KERBEROS, LDAP or CUSTOM.
	Auth string

	// ConnectTimeout bounds connection establishment. Default: 30s.
	ConnectTimeout time.Duration

	// QueryTimeout bounds each statement. Zero means no limit.
	QueryTimeout time.Duration

	// RetryAttempts is the number of connection attempts Connect makes.
	// Statements are never retried. Default: 3.
	RetryAttempts int

	// FetchSize is the number of rows fetched per round trip. Default: 1000.
	FetchSize int
}

// DefaultConfig returns localhost:10000 as user "default" on database
// "default" without authentication.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           10000,
		Username:       "default",
		Database:       "default",
		Auth:           "NONE",
		ConnectTimeout: 30 * time.Second,
		RetryAttempts:  3,
		FetchSize:      1000,
	}
}

var validAuth = map[string]bool{
	"NONE":     true,
	"NOSASL":   true,
	"KERBEROS": true,
	"LDAP":     true,
	"CUSTOM":   true,
}

// Validate checks the configuration without touching the network.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.NewInvalidArgument("host", "host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.NewInvalidArgument("port", fmt.Sprintf("port %d is out of range 1-65535", c.Port))
	}
	if c.Auth != "" && !validAuth[strings.ToUpper(c.Auth)] {
		return errors.NewInvalidArgument("auth",
			fmt.Sprintf("unknown auth mode %q; expected NONE, NOSASL, KERBEROS, LDAP or CUSTOM", c.Auth))
	}
	if c.ConnectTimeout < 0 || c.QueryTimeout < 0 {
		return errors.NewInvalidArgument("timeout", "timeouts cannot be negative")
	}
	if c.RetryAttempts < 0 {
		return errors.NewInvalidArgument("retry_attempts", "retry attempts cannot be negative")
	}
	return nil
}

// String describes the configuration with the password masked.
func (c Config) String() string {
	password := ""
	if c.Password != "" {
		password = "****"
	}
	return fmt.Sprintf("hive://%s:%s@%s:%d/%s?auth=%s", c.Username, password, c.Host, c.Port, c.Database, c.Auth)
}

// ConnectionOptions converts the configuration for a warehouse client
// factory.
func (c Config) ConnectionOptions() adapters.ConnectionOptions {
	return adapters.ConnectionOptions{
		Host:           c.Host,
		Port:           c.Port,
		Username:       c.Username,
		Password:       c.Password,
		Database:       c.Database,
		Auth:           strings.ToUpper(c.Auth),
		ConnectTimeout: c.ConnectTimeout,
		QueryTimeout:   c.QueryTimeout,
		FetchSize:      c.FetchSize,
	}
}
