// Package observability provides structured logging and an operation log
// for rhive.
//
// Every write, read and DDL call emits one OperationEntry: operation id,
// kind, table, mode, action, strategy, rows, statements, duration and
// outcome.
package observability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger. level is debug|info|warn|error, format is
// json|console.
func NewLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if level == "" {
		level = "info"
	}
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("observability: invalid log level %q", level)
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("observability: invalid log format %q (expected json or console)", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// Operation kinds.
const (
	KindWrite = "write"
	KindRead  = "read"
	KindDDL   = "ddl"
)

// Operation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// OperationEntry describes one completed operation.
type OperationEntry struct {
	// OperationID is the unique identifier of the operation.
	// Required.
	OperationID string `json:"operation_id" yaml:"operation_id"`

	// Kind is write, read or ddl.
	// Required.
	Kind string `json:"kind" yaml:"kind"`

	// Table is the target table. Empty for free-form queries.
	Table string `json:"table,omitempty" yaml:"table,omitempty"`

	// Mode is the write mode of a write operation.
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Action is the pre-action the conflict resolver chose.
	Action string `json:"action,omitempty" yaml:"action,omitempty"`

	// Strategy is the ingestion strategy used.
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	Rows       int64 `json:"rows" yaml:"rows"`
	Statements int   `json:"statements" yaml:"statements"`

	// Duration must be non-negative.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Outcome is success, skipped or error.
	Outcome string `json:"outcome" yaml:"outcome"`

	// Error is the error message of a failed operation.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	StartedAt time.Time `json:"started_at" yaml:"started_at"`
}

// Validate checks that all required fields are present.
func (e *OperationEntry) Validate() error {
	if e.OperationID == "" {
		return fmt.Errorf("observability: operation_id is required")
	}
	switch e.Kind {
	case KindWrite, KindRead, KindDDL:
	default:
		return fmt.Errorf("observability: invalid kind %q", e.Kind)
	}
	switch e.Outcome {
	case OutcomeSuccess, OutcomeSkipped, OutcomeError:
	default:
		return fmt.Errorf("observability: invalid outcome %q", e.Outcome)
	}
	if e.Outcome == OutcomeError && e.Error == "" {
		return fmt.Errorf("observability: error message is required when outcome is error")
	}
	if e.Duration < 0 {
		return fmt.Errorf("observability: duration cannot be negative")
	}
	return nil
}

// Recorder receives operation entries.
type Recorder interface {
	Record(ctx context.Context, entry OperationEntry) error
}

// NoopRecorder discards entries.
type NoopRecorder struct{}

// Record does nothing and always succeeds.
func (NoopRecorder) Record(context.Context, OperationEntry) error {
	return nil
}

// ZapRecorder logs entries and keeps them for Summary.
type ZapRecorder struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	entries []OperationEntry
}

// NewZapRecorder creates a recorder logging to logger.
func NewZapRecorder(logger *zap.Logger) *ZapRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapRecorder{logger: logger}
}

// Record logs one entry. Errors log at ERROR, everything else at INFO.
func (r *ZapRecorder) Record(ctx context.Context, entry OperationEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("observability: context error: %w", err)
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("operation_id", entry.OperationID),
		zap.String("kind", entry.Kind),
		zap.String("table", entry.Table),
		zap.String("outcome", entry.Outcome),
		zap.Int64("rows", entry.Rows),
		zap.Int("statements", entry.Statements),
		zap.Duration("duration", entry.Duration),
	}
	if entry.Mode != "" {
		fields = append(fields, zap.String("mode", entry.Mode), zap.String("action", entry.Action))
	}
	if entry.Strategy != "" {
		fields = append(fields, zap.String("strategy", entry.Strategy))
	}

	if entry.Outcome == OutcomeError {
		r.logger.Error("operation failed", append(fields, zap.String("error", entry.Error))...)
	} else {
		r.logger.Info("operation completed", fields...)
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	return nil
}

// Entries returns the recorded entries in order.
func (r *ZapRecorder) Entries() []OperationEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]OperationEntry(nil), r.entries...)
}

// Summary aggregates the recorded entries.
func (r *ZapRecorder) Summary() *Summary {
	return Summarize(r.Entries())
}

// MultiRecorder fans entries out to several recorders. Every recorder is
// called; the first error is returned.
type MultiRecorder []Recorder

// Record forwards entry to every recorder.
func (m MultiRecorder) Record(ctx context.Context, entry OperationEntry) error {
	var first error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Summary is aggregated operation statistics.
type Summary struct {
	SuccessCount int         `json:"success_count" yaml:"success_count"`
	SkippedCount int         `json:"skipped_count" yaml:"skipped_count"`
	ErrorCount   int         `json:"error_count" yaml:"error_count"`
	RowsWritten  int64       `json:"rows_written" yaml:"rows_written"`
	TopTables    []TableStat `json:"top_tables" yaml:"top_tables"`
	TopErrors    []ErrorStat `json:"top_errors" yaml:"top_errors"`
}

// TableStat counts operations on a table.
type TableStat struct {
	Table string `json:"table" yaml:"table"`
	Count int    `json:"count" yaml:"count"`
}

// ErrorStat counts occurrences of an error message.
type ErrorStat struct {
	Error string `json:"error" yaml:"error"`
	Count int    `json:"count" yaml:"count"`
}

const topN = 5

// Summarize aggregates entries.
func Summarize(entries []OperationEntry) *Summary {
	s := &Summary{
		TopTables: []TableStat{},
		TopErrors: []ErrorStat{},
	}

	tables := make(map[string]int)
	errs := make(map[string]int)
	for _, e := range entries {
		switch e.Outcome {
		case OutcomeSuccess:
			s.SuccessCount++
		case OutcomeSkipped:
			s.SkippedCount++
		case OutcomeError:
			s.ErrorCount++
			errs[e.Error]++
		}
		if e.Kind == KindWrite && e.Outcome == OutcomeSuccess {
			s.RowsWritten += e.Rows
		}
		if e.Table != "" {
			tables[e.Table]++
		}
	}

	for table, count := range tables {
		s.TopTables = append(s.TopTables, TableStat{Table: table, Count: count})
	}
	sort.Slice(s.TopTables, func(i, j int) bool {
		if s.TopTables[i].Count != s.TopTables[j].Count {
			return s.TopTables[i].Count > s.TopTables[j].Count
		}
		return s.TopTables[i].Table < s.TopTables[j].Table
	})
	if len(s.TopTables) > topN {
		s.TopTables = s.TopTables[:topN]
	}

	for msg, count := range errs {
		s.TopErrors = append(s.TopErrors, ErrorStat{Error: msg, Count: count})
	}
	sort.Slice(s.TopErrors, func(i, j int) bool {
		if s.TopErrors[i].Count != s.TopErrors[j].Count {
			return s.TopErrors[i].Count > s.TopErrors[j].Count
		}
		return s.TopErrors[i].Error < s.TopErrors[j].Error
	})
	if len(s.TopErrors) > topN {
		s.TopErrors = s.TopErrors[:topN]
	}

	return s
}
