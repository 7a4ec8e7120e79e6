// Package config provides configuration loading for the rhive CLI.
//
// Precedence, lowest first: defaults, the YAML config file, RHIVE_*
// environment variables (RHIVE_HIVE_HOST, RHIVE_WRITER_STRATEGY, ...), and
// the HIVE_HOST, HIVE_PORT, HIVE_USERNAME, HIVE_PASSWORD, HIVE_DATABASE and
// HIVE_AUTH variables, which are read when the matching RHIVE_ variable is
// unset.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/canonica-labs/rhive/internal/adapters"
	"github.com/canonica-labs/rhive/internal/ingest"
	"github.com/canonica-labs/rhive/pkg/hive"
)

// Transports the CLI knows how to open.
var Transports = []string{"hiveserver2", "trino", "duckdb", "sql", "memory"}

// Config holds the application configuration.
type Config struct {
	Hive    HiveConfig    `mapstructure:"hive" yaml:"hive" json:"hive"`
	Trino   TrinoConfig   `mapstructure:"trino" yaml:"trino" json:"trino"`
	SQL     SQLConfig     `mapstructure:"sql" yaml:"sql" json:"sql"`
	Writer  WriterConfig  `mapstructure:"writer" yaml:"writer" json:"writer"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`
	Journal JournalConfig `mapstructure:"journal" yaml:"journal" json:"journal"`

	// Path is the config file that was read, empty when none was found.
	Path string `mapstructure:"-" yaml:"-" json:"-"`
}

// HiveConfig is the warehouse connection.
type HiveConfig struct {
	Host           string        `mapstructure:"host" yaml:"host" json:"host"`
	Port           int           `mapstructure:"port" yaml:"port" json:"port"`
	Username       string        `mapstructure:"username" yaml:"username" json:"username"`
	Password       string        `mapstructure:"password" yaml:"password" json:"password"`
	Database       string        `mapstructure:"database" yaml:"database" json:"database"`
	Auth           string        `mapstructure:"auth" yaml:"auth" json:"auth"`
	Transport      string        `mapstructure:"transport" yaml:"transport" json:"transport"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout" yaml:"query_timeout" json:"query_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts" yaml:"retry_attempts" json:"retry_attempts"`
	FetchSize      int           `mapstructure:"fetch_size" yaml:"fetch_size" json:"fetch_size"`
}

// TrinoConfig is used by the trino transport.
type TrinoConfig struct {
	Catalog string `mapstructure:"catalog" yaml:"catalog" json:"catalog"`
	Schema  string `mapstructure:"schema" yaml:"schema" json:"schema"`
	SSL     bool   `mapstructure:"ssl" yaml:"ssl" json:"ssl"`
}

// SQLConfig is used by the duckdb and generic sql transports.
type SQLConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
}

// WriterConfig selects and tunes the ingestion strategy.
type WriterConfig struct {
	Strategy            string `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	BatchSize           int    `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size"`
	LargeWriteThreshold int    `mapstructure:"large_write_threshold" yaml:"large_write_threshold" json:"large_write_threshold"`
	StagingDir          string `mapstructure:"staging_dir" yaml:"staging_dir" json:"staging_dir"`
	Delimiter           string `mapstructure:"delimiter" yaml:"delimiter" json:"delimiter"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// JournalConfig points at the PostgreSQL operation journal. An empty DSN
// keeps the journal in memory for the life of the process.
type JournalConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Hive: HiveConfig{
			Host:           "localhost",
			Port:           10000,
			Username:       "default",
			Database:       "default",
			Auth:           "NONE",
			Transport:      "hiveserver2",
			ConnectTimeout: 30 * time.Second,
			QueryTimeout:   300 * time.Second,
			RetryAttempts:  3,
			FetchSize:      1000,
		},
		Trino: TrinoConfig{
			Catalog: "hive",
		},
		Writer: WriterConfig{
			Strategy:            "inline",
			BatchSize:           ingest.DefaultBatchSize,
			LargeWriteThreshold: ingest.DefaultLargeWriteThreshold,
			StagingDir:          os.TempDir(),
			Delimiter:           string(ingest.DefaultDelimiter),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// SearchPaths returns the config files tried when no path is given.
func SearchPaths() []string {
	paths := []string{"rhive.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".rhive", "config.yaml"))
	}
	return paths
}

// Load loads configuration from file and environment. A missing file is
// only an error when configPath names it explicitly.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	path := configPath
	if path == "" {
		for _, candidate := range SearchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("RHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, "RHIVE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", legacy, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.Path = path
	return &cfg, nil
}

var legacyEnv = map[string]string{
	"hive.host":     "HIVE_HOST",
	"hive.port":     "HIVE_PORT",
	"hive.username": "HIVE_USERNAME",
	"hive.password": "HIVE_PASSWORD",
	"hive.database": "HIVE_DATABASE",
	"hive.auth":     "HIVE_AUTH",
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("hive.host", d.Hive.Host)
	v.SetDefault("hive.port", d.Hive.Port)
	v.SetDefault("hive.username", d.Hive.Username)
	v.SetDefault("hive.password", d.Hive.Password)
	v.SetDefault("hive.database", d.Hive.Database)
	v.SetDefault("hive.auth", d.Hive.Auth)
	v.SetDefault("hive.transport", d.Hive.Transport)
	v.SetDefault("hive.connect_timeout", d.Hive.ConnectTimeout)
	v.SetDefault("hive.query_timeout", d.Hive.QueryTimeout)
	v.SetDefault("hive.retry_attempts", d.Hive.RetryAttempts)
	v.SetDefault("hive.fetch_size", d.Hive.FetchSize)
	v.SetDefault("trino.catalog", d.Trino.Catalog)
	v.SetDefault("trino.schema", d.Trino.Schema)
	v.SetDefault("trino.ssl", d.Trino.SSL)
	v.SetDefault("sql.driver", d.SQL.Driver)
	v.SetDefault("sql.dsn", d.SQL.DSN)
	v.SetDefault("writer.strategy", d.Writer.Strategy)
	v.SetDefault("writer.batch_size", d.Writer.BatchSize)
	v.SetDefault("writer.large_write_threshold", d.Writer.LargeWriteThreshold)
	v.SetDefault("writer.staging_dir", d.Writer.StagingDir)
	v.SetDefault("writer.delimiter", d.Writer.Delimiter)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("journal.dsn", d.Journal.DSN)
}

// Validate rejects configurations that cannot work. Every problem is
// reported, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if err := c.HiveConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if !contains(Transports, c.Hive.Transport) {
		errs = append(errs, fmt.Errorf("hive.transport %q is unknown; expected one of %s", c.Hive.Transport, strings.Join(Transports, ", ")))
	}
	if c.Hive.Transport == "sql" && (c.SQL.Driver == "" || c.SQL.DSN == "") {
		errs = append(errs, fmt.Errorf("transport sql needs sql.driver and sql.dsn"))
	}
	if _, err := ingest.ParseStrategy(c.Writer.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("writer.strategy %q is unknown; expected inline, local_file or columnar_file", c.Writer.Strategy))
	}
	if c.Writer.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("writer.batch_size must be positive, got %d", c.Writer.BatchSize))
	}
	if c.Writer.LargeWriteThreshold <= 0 {
		errs = append(errs, fmt.Errorf("writer.large_write_threshold must be positive, got %d", c.Writer.LargeWriteThreshold))
	}
	if _, err := c.Writer.DelimiterRune(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DelimiterRune returns the single-character staging delimiter. "\t" and
// "tab" mean a tab.
func (w WriterConfig) DelimiterRune() (rune, error) {
	switch w.Delimiter {
	case "":
		return ingest.DefaultDelimiter, nil
	case `\t`, "tab":
		return '\t', nil
	}
	r := []rune(w.Delimiter)
	if len(r) != 1 {
		return 0, fmt.Errorf("writer.delimiter must be a single character, got %q", w.Delimiter)
	}
	return r[0], nil
}

// HiveConfig converts the hive section to a connection configuration.
func (c *Config) HiveConfig() hive.Config {
	return hive.Config{
		Host:           c.Hive.Host,
		Port:           c.Hive.Port,
		Username:       c.Hive.Username,
		Password:       c.Hive.Password,
		Database:       c.Hive.Database,
		Auth:           c.Hive.Auth,
		ConnectTimeout: c.Hive.ConnectTimeout,
		QueryTimeout:   c.Hive.QueryTimeout,
		RetryAttempts:  c.Hive.RetryAttempts,
		FetchSize:      c.Hive.FetchSize,
	}
}

// Factory opens clients through reg, filling in the transport-specific
// settings that hive.Config does not carry.
func (c *Config) Factory(reg *adapters.Registry) adapters.Factory {
	return func(ctx context.Context, opts adapters.ConnectionOptions) (adapters.Client, error) {
		opts.Transport = c.Hive.Transport
		opts.Catalog = c.Trino.Catalog
		opts.Schema = c.Trino.Schema
		opts.SSL = c.Trino.SSL
		opts.Driver = c.SQL.Driver
		opts.DSN = c.SQL.DSN
		return reg.Open(ctx, opts)
	}
}

// IngestOptions converts the writer section to loader options.
func (c *Config) IngestOptions() (ingest.Strategy, ingest.Options, error) {
	strategy, err := ingest.ParseStrategy(c.Writer.Strategy)
	if err != nil {
		return 0, ingest.Options{}, err
	}
	delim, err := c.Writer.DelimiterRune()
	if err != nil {
		return 0, ingest.Options{}, err
	}
	return strategy, ingest.Options{
		BatchSize:           c.Writer.BatchSize,
		LargeWriteThreshold: c.Writer.LargeWriteThreshold,
		StagingDir:          c.Writer.StagingDir,
		Delimiter:           delim,
	}, nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Hive.Password != "" {
		cp.Hive.Password = "****"
	}
	if cp.SQL.DSN != "" {
		cp.SQL.DSN = "****"
	}
	if cp.Journal.DSN != "" {
		cp.Journal.DSN = "****"
	}
	return &cp
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
