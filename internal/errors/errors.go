// Package errors provides explicit, human-readable error types for rhive.
// Every error carries a Reason and a Suggestion so a failed write can be
// diagnosed from the message alone.
package errors

import (
	stderrors "errors"
	"fmt"
)

// RhiveError is the base error type for all rhive errors.
type RhiveError struct {
	Code       ErrorCode
	Message    string
	Reason     string
	Suggestion string
	Cause      error
}

// ErrorCode represents the category of error for exit code mapping.
type ErrorCode int

const (
	CodeValidation ErrorCode = 1
	CodeConnection ErrorCode = 2
	CodeWarehouse  ErrorCode = 3
	CodeInternal   ErrorCode = 4
)

func (e *RhiveError) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg = fmt.Sprintf("%s\nReason: %s", msg, e.Reason)
	}
	if e.Suggestion != "" {
		msg = fmt.Sprintf("%s\nSuggestion: %s", msg, e.Suggestion)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s\nCaused by: %v", msg, e.Cause)
	}
	return msg
}

func (e *RhiveError) Unwrap() error {
	return e.Cause
}

// ErrNotConnected is returned when an operation runs before Connect.
type ErrNotConnected struct {
	RhiveError
	Operation string
}

// NewNotConnected creates a new ErrNotConnected.
func NewNotConnected(operation string) *ErrNotConnected {
	return &ErrNotConnected{
		RhiveError: RhiveError{
			Code:       CodeConnection,
			Message:    fmt.Sprintf("%s requires a connection", operation),
			Reason:     "not connected to the warehouse",
			Suggestion: "call Connect() first or use WithWriter/WithReader",
		},
		Operation: operation,
	}
}

// ErrTableAlreadyExists is returned by the error-if-exists write mode
// when the target table is already present.
type ErrTableAlreadyExists struct {
	RhiveError
	Table string
}

// NewTableAlreadyExists creates a new ErrTableAlreadyExists.
func NewTableAlreadyExists(table string) *ErrTableAlreadyExists {
	return &ErrTableAlreadyExists{
		RhiveError: RhiveError{
			Code:       CodeValidation,
			Message:    fmt.Sprintf("table already exists: %s", table),
			Reason:     "write mode error_if_exists refuses to touch an existing table",
			Suggestion: "use mode overwrite, append or ignore",
		},
		Table: table,
	}
}

// ErrUnsupportedType is returned when a column type has no warehouse equivalent.
type ErrUnsupportedType struct {
	RhiveError
	Column string
	Type   string
}

// NewUnsupportedType creates a new ErrUnsupportedType.
func NewUnsupportedType(column, typ string) *ErrUnsupportedType {
	return &ErrUnsupportedType{
		RhiveError: RhiveError{
			Code:       CodeValidation,
			Message:    fmt.Sprintf("unsupported column type %s for column %q", typ, column),
			Reason:     "supported types are boolean, integers, floats, string, date and timestamp",
			Suggestion: "cast or drop the column before writing",
		},
		Column: column,
		Type:   typ,
	}
}

// Stages reported by ErrExecutionFailure.
const (
	StageExistsCheck = "exists-check"
	StageDrop        = "drop"
	StageCreate      = "create"
	StageInsert      = "insert"
	StageLoad        = "load"
	StageQuery       = "query"
)

// ErrExecutionFailure is returned when the warehouse rejects a statement.
type ErrExecutionFailure struct {
	RhiveError
	Stage     string
	Statement string
}

// NewExecutionFailure creates a new ErrExecutionFailure.
func NewExecutionFailure(stage, statement string, cause error) *ErrExecutionFailure {
	return &ErrExecutionFailure{
		RhiveError: RhiveError{
			Code:       CodeWarehouse,
			Message:    fmt.Sprintf("warehouse rejected %s statement", stage),
			Reason:     fmt.Sprintf("statement: %s", truncate(statement, 120)),
			Suggestion: "check the warehouse logs; statements already executed are not rolled back",
			Cause:      cause,
		},
		Stage:     stage,
		Statement: statement,
	}
}

// ErrConnectionFailed is returned when Connect cannot reach the warehouse.
type ErrConnectionFailed struct {
	RhiveError
	Address  string
	Attempts int
}

// NewConnectionFailed creates a new ErrConnectionFailed.
func NewConnectionFailed(address string, attempts int, cause error) *ErrConnectionFailed {
	return &ErrConnectionFailed{
		RhiveError: RhiveError{
			Code:       CodeConnection,
			Message:    fmt.Sprintf("cannot connect to %s", address),
			Reason:     fmt.Sprintf("gave up after %d attempt(s)", attempts),
			Suggestion: "check hive.host, hive.port and hive.auth, and that HiveServer2 is running",
			Cause:      cause,
		},
		Address:  address,
		Attempts: attempts,
	}
}

// ErrStagingIO is returned when a temporary staging file cannot be produced.
type ErrStagingIO struct {
	RhiveError
	Path string
	Op   string
}

// NewStagingIO creates a new ErrStagingIO.
func NewStagingIO(op, path string, cause error) *ErrStagingIO {
	return &ErrStagingIO{
		RhiveError: RhiveError{
			Code:       CodeInternal,
			Message:    fmt.Sprintf("staging file %s failed: %s", op, path),
			Reason:     "the local staging directory is not writable or is full",
			Suggestion: "set writer.staging_dir to a writable directory",
			Cause:      cause,
		},
		Path: path,
		Op:   op,
	}
}

// ErrInvalidArgument is returned for malformed caller input.
type ErrInvalidArgument struct {
	RhiveError
	Field string
}

// NewInvalidArgument creates a new ErrInvalidArgument.
func NewInvalidArgument(field, reason string) *ErrInvalidArgument {
	return &ErrInvalidArgument{
		RhiveError: RhiveError{
			Code:       CodeValidation,
			Message:    "invalid argument",
			Reason:     fmt.Sprintf("%s: %s", field, reason),
			Suggestion: "fix the argument and retry",
		},
		Field: field,
	}
}

// ErrStrategyUnknown is returned when an ingestion strategy name is not recognised.
type ErrStrategyUnknown struct {
	RhiveError
	Name string
}

// NewStrategyUnknown creates a new ErrStrategyUnknown.
func NewStrategyUnknown(name string) *ErrStrategyUnknown {
	return &ErrStrategyUnknown{
		RhiveError: RhiveError{
			Code:       CodeValidation,
			Message:    fmt.Sprintf("unknown ingestion strategy %q", name),
			Reason:     "strategy must be inline, local_file or columnar_file",
			Suggestion: "set writer.strategy in the config file",
		},
		Name: name,
	}
}

// ErrTransportUnavailable is returned when no client is registered for a transport.
type ErrTransportUnavailable struct {
	RhiveError
	Transport string
}

// NewTransportUnavailable creates a new ErrTransportUnavailable.
func NewTransportUnavailable(transport string, available []string) *ErrTransportUnavailable {
	return &ErrTransportUnavailable{
		RhiveError: RhiveError{
			Code:       CodeConnection,
			Message:    fmt.Sprintf("no warehouse client for transport %q", transport),
			Reason:     fmt.Sprintf("registered transports: %v", available),
			Suggestion: "set hive.transport to one of the registered transports",
		},
		Transport: transport,
	}
}

// IsNotConnected reports whether err is an ErrNotConnected.
func IsNotConnected(err error) bool {
	var target *ErrNotConnected
	return stderrors.As(err, &target)
}

// IsTableAlreadyExists reports whether err is an ErrTableAlreadyExists.
func IsTableAlreadyExists(err error) bool {
	var target *ErrTableAlreadyExists
	return stderrors.As(err, &target)
}

// IsConnectionFailed reports whether err is an ErrConnectionFailed.
func IsConnectionFailed(err error) bool {
	var target *ErrConnectionFailed
	return stderrors.As(err, &target)
}

// IsUnsupportedType reports whether err is an ErrUnsupportedType.
func IsUnsupportedType(err error) bool {
	var target *ErrUnsupportedType
	return stderrors.As(err, &target)
}

// IsExecutionFailure reports whether err is an ErrExecutionFailure and
// returns the failing stage.
func IsExecutionFailure(err error) (string, bool) {
	var target *ErrExecutionFailure
	if stderrors.As(err, &target) {
		return target.Stage, true
	}
	return "", false
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded interface{ code() ErrorCode }
	if stderrors.As(err, &coded) {
		return int(coded.code())
	}
	return int(CodeInternal)
}

func (e *RhiveError) code() ErrorCode {
	return e.Code
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
