// Package ingest loads the rows of a local table into an existing
// warehouse table.
//
// Exactly one Strategy runs per load:
//   - Inline renders batches of INSERT ... VALUES statements.
//   - LocalFile stages a headerless delimited file and issues LOAD DATA LOCAL INPATH.
//   - ColumnarFile stages a Parquet file and issues LOAD DATA LOCAL INPATH.
//
// The strategy is fixed when the Loader is built. Staged files live on
// the machine running the warehouse's LOCAL loader and are removed after
// every load, successful or not.
package ingest

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/canonica-labs/rhive/internal/errors"
)

// Strategy identifies how rows reach the warehouse.
type Strategy int

const (
	// Inline issues batched INSERT ... VALUES statements. It is the default.
	Inline Strategy = iota
	// LocalFile stages a delimited text file and bulk loads it.
	LocalFile
	// ColumnarFile stages a Parquet file and bulk loads it.
	ColumnarFile
)

func (s Strategy) String() string {
	switch s {
	case Inline:
		return "inline"
	case LocalFile:
		return "local_file"
	case ColumnarFile:
		return "columnar_file"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a configuration value to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "inline", "insert":
		return Inline, nil
	case "local_file", "csv":
		return LocalFile, nil
	case "columnar_file", "parquet":
		return ColumnarFile, nil
	default:
		return Inline, errors.NewStrategyUnknown(name)
	}
}

// Executor runs a single DDL/DML statement.
type Executor interface {
	Exec(ctx context.Context, stmt string) error
}

// Defaults for Options.
const (
	DefaultBatchSize           = 100
	DefaultLargeWriteThreshold = 1000
	DefaultDelimiter           = ','
	DefaultNullMarker          = `\N`
)

// Options tunes a Loader. Zero values take the defaults.
type Options struct {
	// BatchSize is the number of rows per inline INSERT statement.
	BatchSize int

	// LargeWriteThreshold is the inline row count above which a warning
	// recommends a file strategy.
	LargeWriteThreshold int

	// StagingDir receives staged files. Defaults to os.TempDir().
	StagingDir string

	// Delimiter separates fields in LocalFile staging.
	Delimiter rune

	// NullMarker is written for null cells in LocalFile staging.
	NullMarker string

	// Fs is the filesystem used for staging. Defaults to the OS filesystem.
	Fs afero.Fs

	// Logger receives warnings. Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultOptions returns Options with every default applied.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.LargeWriteThreshold <= 0 {
		o.LargeWriteThreshold = DefaultLargeWriteThreshold
	}
	if o.StagingDir == "" {
		o.StagingDir = os.TempDir()
	}
	if o.Delimiter == 0 {
		o.Delimiter = DefaultDelimiter
	}
	if o.NullMarker == "" {
		o.NullMarker = DefaultNullMarker
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
